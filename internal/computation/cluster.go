package computation

import (
	"bytes"
	"crypto/ed25519"

	errorsmod "cosmossdk.io/errors"
)

// Node is a cluster member allowed to deliver outcomes.
type Node struct {
	ID     string `json:"id"`
	PubKey []byte `json:"pubKey"` // ed25519
}

// Cluster identifies the computation cluster sessions submit to. It is set
// once at construction of whatever issues requests and never changes after.
type Cluster struct {
	ID        string `json:"id"`
	MXEPubKey []byte `json:"mxePubKey"` // ristretto255
	Nodes     []Node `json:"nodes"`
}

func (c *Cluster) Validate() error {
	if c == nil || c.ID == "" {
		return errorsmod.Wrap(ErrClusterNotSet, "missing cluster id")
	}
	if len(c.MXEPubKey) != 32 {
		return errorsmod.Wrap(ErrClusterNotSet, "mxePubKey must be 32 bytes")
	}
	if len(c.Nodes) == 0 {
		return errorsmod.Wrap(ErrClusterNotSet, "cluster has no nodes")
	}
	seen := map[string]bool{}
	for _, n := range c.Nodes {
		if n.ID == "" || len(n.PubKey) != ed25519.PublicKeySize {
			return errorsmod.Wrapf(ErrClusterNotSet, "node %q: invalid id/pubKey", n.ID)
		}
		if seen[n.ID] {
			return errorsmod.Wrapf(ErrClusterNotSet, "duplicate node %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

func (c *Cluster) NodeByID(id string) (Node, bool) {
	if c == nil {
		return Node{}, false
	}
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (c *Cluster) NodeByPubKey(pub []byte) (Node, bool) {
	if c == nil {
		return Node{}, false
	}
	for _, n := range c.Nodes {
		if bytes.Equal(n.PubKey, pub) {
			return n, true
		}
	}
	return Node{}, false
}
