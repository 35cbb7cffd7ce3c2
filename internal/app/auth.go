package app

import (
	"bytes"
	"crypto/ed25519"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/stanleykosi/veridian/internal/codec"
	"github.com/stanleykosi/veridian/internal/state"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.nonce")
	}
	if env.Signer == "" {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return errorsmod.Wrap(ErrUnauthorized, "missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return errorsmod.Wrapf(ErrUnauthorized, "invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

func verifyEnvelope(pub []byte, env codec.TxEnvelope) error {
	if len(pub) != ed25519.PublicKeySize {
		return errorsmod.Wrapf(ErrUnauthorized, "signer %q has no registered pubKey", env.Signer)
	}
	msg := codec.SignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return errorsmod.Wrap(ErrUnauthorized, "invalid signature")
	}
	return nil
}

// checkNonce parses raw and requires it to exceed the last accepted nonce.
func checkNonce(signer, raw string, last uint64, seen bool) (uint64, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errorsmod.Wrapf(ErrBadTx, "invalid tx.nonce %q", raw)
	}
	if seen && n <= last {
		return 0, errorsmod.Wrapf(ErrReplay, "signer %q nonce %d, last accepted %d", signer, n, last)
	}
	return n, nil
}

// consumeNonce enforces a strictly increasing tx.nonce per account.
func consumeNonce(c *state.Cache, signer string, raw string) error {
	last, ok, err := c.NonceMax(signer)
	if err != nil {
		return err
	}
	n, err := checkNonce(signer, raw, last, ok)
	if err != nil {
		return err
	}
	c.SetNonceMax(signer, n)
	return nil
}

// consumeNodeNonce is consumeNonce over the node table.
func consumeNodeNonce(c *state.Cache, nodeID string, raw string) error {
	last, ok, err := c.NodeNonceMax(nodeID)
	if err != nil {
		return err
	}
	n, err := checkNonce(nodeID, raw, last, ok)
	if err != nil {
		return err
	}
	c.SetNodeNonceMax(nodeID, n)
	return nil
}

// validAccountName rejects names that could pass for a path segment or a
// namespace.
func validAccountName(name string) error {
	if name == "" {
		return errorsmod.Wrap(ErrBadTx, "missing account")
	}
	if strings.Contains(name, "/") {
		return errorsmod.Wrapf(ErrBadTx, "account %q must not contain '/'", name)
	}
	return nil
}

func requireRegisterAccountAuth(c *state.Cache, env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if err := validAccountName(msg.Account); err != nil {
		return err
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return errorsmod.Wrapf(ErrBadTx, "pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return errorsmod.Wrapf(ErrUnauthorized, "tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	existing, err := c.AccountKey(msg.Account)
	if err != nil {
		return err
	}
	if existing != nil && !bytes.Equal(existing, msg.PubKey) {
		return errorsmod.Wrapf(ErrUnauthorized, "account %q already registered", msg.Account)
	}
	if err := verifyEnvelope(msg.PubKey, env); err != nil {
		return err
	}
	return consumeNonce(c, env.Signer, env.Nonce)
}

func requireAccountAuth(c *state.Cache, env codec.TxEnvelope, account string) error {
	if account == "" {
		return errorsmod.Wrap(ErrBadTx, "missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return errorsmod.Wrapf(ErrUnauthorized, "tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub, err := c.AccountKey(account)
	if err != nil {
		return err
	}
	if pub == nil {
		return errorsmod.Wrapf(ErrUnauthorized, "account %q missing pubKey (auth/register_account required)", account)
	}
	if err := verifyEnvelope(pub, env); err != nil {
		return err
	}
	return consumeNonce(c, env.Signer, env.Nonce)
}

// requireNodeAuth checks a delivery tx against the cluster's node keys.
func (a *App) requireNodeAuth(c *state.Cache, env codec.TxEnvelope, nodeID string) error {
	if nodeID == "" {
		return errorsmod.Wrap(ErrBadTx, "missing nodeId")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != nodeID {
		return errorsmod.Wrapf(ErrUnauthorized, "tx signer mismatch: signer=%q want=%q", env.Signer, nodeID)
	}
	cluster := a.params.Cluster
	node, ok := cluster.NodeByID(nodeID)
	if !ok {
		return errorsmod.Wrapf(ErrUnauthorized, "node %q is not in the cluster", nodeID)
	}
	if err := verifyEnvelope(node.PubKey, env); err != nil {
		return err
	}
	return consumeNodeNonce(c, nodeID, env.Nonce)
}
