package mpc

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/seal"
)

// RefResolver fetches ciphertexts a request passes by reference.
type RefResolver interface {
	ResolveRef(ctx context.Context, ref computation.Ref) ([]computation.Ciphertext, error)
}

// Shuffler produces the deck for a deal. seed is unique per request and
// known only to the cluster.
type Shuffler func(seed []byte) [cards.DeckSize]cards.Card

type Config struct {
	ClusterID string
	MXE       seal.KeyPair
	NodeID    string
	NodeKey   ed25519.PrivateKey
	Shuffle   Shuffler // cards.DeterministicDeck when nil
}

// Cluster is a single-operator stand-in for the computation network. It
// holds the MXE secret and evaluates circuits in-process.
type Cluster struct {
	id      string
	mxe     seal.KeyPair
	mxeKey  seal.Key
	nodeID  string
	nodeKey ed25519.PrivateKey
	shuffle Shuffler
	logger  log.Logger
}

func New(cfg Config, logger log.Logger) (*Cluster, error) {
	if cfg.ClusterID == "" || cfg.NodeID == "" {
		return nil, errorsmod.Wrap(ErrBadConfig, "missing cluster or node id")
	}
	if len(cfg.NodeKey) != ed25519.PrivateKeySize {
		return nil, errorsmod.Wrap(ErrBadConfig, "node key must be an ed25519 private key")
	}
	if cfg.MXE.Secret.IsZero() {
		return nil, errorsmod.Wrap(ErrBadConfig, "missing MXE secret")
	}
	key, err := seal.MXEKey(cfg.MXE.Secret)
	if err != nil {
		return nil, err
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = cards.DeterministicDeck
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Cluster{
		id:      cfg.ClusterID,
		mxe:     cfg.MXE,
		mxeKey:  key,
		nodeID:  cfg.NodeID,
		nodeKey: cfg.NodeKey,
		shuffle: cfg.Shuffle,
		logger:  logger.With("module", ModuleName),
	}, nil
}

// Info is the public cluster description sessions are configured with.
func (c *Cluster) Info() computation.Cluster {
	return computation.Cluster{
		ID:        c.id,
		MXEPubKey: c.mxe.PublicBytes(),
		Nodes: []computation.Node{{
			ID:     c.nodeID,
			PubKey: append([]byte(nil), c.nodeKey.Public().(ed25519.PublicKey)...),
		}},
	}
}

func (c *Cluster) NodeID() string { return c.nodeID }

// SignSideChannel signs the tail of a split result as this node.
func (c *Cluster) SignSideChannel(req *computation.Request, data []byte) computation.SideChannelPayload {
	return computation.SignSideChannel(c.nodeKey, req.QueueID, req.CompDefID, req.OriginTx, data)
}

// Execute runs req. Aborts inside a circuit come back as a Failure outcome;
// an error means the computation did not run (cancelled, refs unavailable).
func (c *Cluster) Execute(ctx context.Context, req *computation.Request, refs RefResolver) (computation.Outcome, error) {
	if err := req.Validate(); err != nil {
		return computation.Failure{Reason: err.Error()}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := c.bind(ctx, req, refs)
	if err != nil {
		if errorsmod.IsOf(err, ErrAborted) {
			return computation.Failure{Reason: err.Error()}, nil
		}
		return nil, err
	}

	var fields []computation.ResultField
	switch req.Circuit {
	case computation.CircuitShuffleAndDeal:
		fields, err = c.shuffleAndDeal(req, in)
	case computation.CircuitPlayerHit, computation.CircuitDoubleDown:
		fields, err = c.playerHit(req, in)
	case computation.CircuitPlayerStand:
		fields, err = c.playerStand(in)
	case computation.CircuitDealerPlay:
		fields, err = c.dealerPlay(req, in)
	case computation.CircuitResolveGame:
		fields, err = c.resolveGame(req, in)
	default:
		err = abortf("unknown circuit %q", req.Circuit)
	}
	if err != nil {
		if errorsmod.IsOf(err, ErrAborted) {
			c.logger.Warn("circuit aborted", "circuit", req.Circuit, "key", req.Key, "err", err)
			return computation.Failure{Reason: err.Error()}, nil
		}
		return nil, err
	}
	c.logger.Debug("computation finished", "circuit", req.Circuit, "key", req.Key, "fields", len(fields))
	return computation.Success{Fields: fields}, nil
}

// bind resolves references so circuits see every argument by value.
func (c *Cluster) bind(ctx context.Context, req *computation.Request, refs RefResolver) (*args, error) {
	in := &args{list: make([]computation.Argument, len(req.Args))}
	for i, a := range req.Args {
		if a.Kind != computation.ArgRef {
			in.list[i] = a
			continue
		}
		if refs == nil {
			return nil, errorsmod.Wrapf(ErrRefMissing, "arg %d passed by reference without a resolver", i)
		}
		cts, err := refs.ResolveRef(ctx, *a.Ref)
		if err != nil {
			return nil, errorsmod.Wrapf(ErrRefMissing, "arg %d (%s): %v", i, a.Ref.Account, err)
		}
		if uint32(len(cts)) != a.Ref.Length {
			return nil, abortf("arg %d: reference resolved to %d ciphertexts, want %d", i, len(cts), a.Ref.Length)
		}
		in.list[i] = computation.Argument{Kind: computation.ArgCiphertext, Ciphertexts: cts}
	}
	return in, nil
}

// dealSeed never leaves the cluster. It depends only on inputs that stay
// fixed while a deal is retried, so a retry seals the same deck under the
// same nonces and reproduces the earlier ciphertexts exactly.
func (c *Cluster) dealSeed(sessionID uint64, pub []byte, clientNonce, deckNonce uint64) []byte {
	h := sha256.New()
	h.Write([]byte("veridian/deal"))
	h.Write(c.mxe.Secret.Bytes())
	h.Write(binary.BigEndian.AppendUint64(nil, sessionID))
	h.Write(pub)
	h.Write(binary.BigEndian.AppendUint64(nil, clientNonce))
	h.Write(binary.BigEndian.AppendUint64(nil, deckNonce))
	return h.Sum(nil)
}

// sessionKey scopes the computation-only key to one session. Every session
// starts its nonces at zero, so a cluster-wide key would repeat keystreams.
func (c *Cluster) sessionKey(sessionID uint64) (seal.Key, error) {
	return seal.SessionKey(c.mxeKey, sessionID)
}

func (c *Cluster) sharedKey(pub []byte) (seal.Key, error) {
	p, err := seal.PointFromBytesCanonical(pub)
	if err != nil {
		return seal.Key{}, abortf("recipient key: %v", err)
	}
	return seal.SharedKey(c.mxe.Secret, p)
}
