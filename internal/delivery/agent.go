package delivery

import (
	"bytes"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/session"
)

// DefaultInlineLimit is the largest binary result carried by a callback tx.
const DefaultInlineLimit = 192

// Callback is an outcome delivered over the primary channel. When Total is
// non-zero the result was split: Outcome.Payload holds the first bytes and
// the rest follows over the side channel.
type Callback struct {
	Node       string
	RequestKey string
	Outcome    computation.Envelope
	Total      uint32
}

// Delivery is an accepted result. Exactly one of Outcome and Partial is set,
// except for a stale key where both may be nil and the session discards it.
type Delivery struct {
	Key     string
	Outcome computation.Outcome
	Partial *computation.Partial
}

// Agent authenticates results from the cluster before they reach a session.
type Agent struct {
	cluster computation.Cluster
	logger  log.Logger
}

func NewAgent(cluster computation.Cluster, logger log.Logger) (*Agent, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Agent{cluster: cluster, logger: logger.With("module", ModuleName)}, nil
}

// AcceptInline validates a primary-channel callback. The sender's signature
// has already been checked against the node key by the caller.
func (a *Agent) AcceptInline(s *session.Session, cb Callback) (Delivery, error) {
	if _, ok := a.cluster.NodeByID(cb.Node); !ok {
		return Delivery{}, a.security(s, errorsmod.Wrapf(ErrUnknownNode, "%q", cb.Node))
	}
	if cb.RequestKey == "" {
		return Delivery{}, errorsmod.Wrap(ErrInvalidCallback, "missing request key")
	}
	stale := s.Pending == nil || s.Pending.Key != cb.RequestKey

	if cb.Total == 0 {
		if stale {
			return Delivery{Key: cb.RequestKey}, nil
		}
		out, err := cb.Outcome.Outcome()
		if err != nil {
			return Delivery{}, err
		}
		return Delivery{Key: cb.RequestKey, Outcome: out}, nil
	}

	if cb.Outcome.Status != computation.StatusSuccess || len(cb.Outcome.Fields) > 0 {
		return Delivery{}, errorsmod.Wrap(ErrInvalidCallback, "split callback must be a success carrying a payload head")
	}
	if len(cb.Outcome.Payload) == 0 || uint32(len(cb.Outcome.Payload)) >= cb.Total {
		return Delivery{}, errorsmod.Wrapf(ErrInvalidCallback, "head of %d bytes for total %d", len(cb.Outcome.Payload), cb.Total)
	}
	if stale {
		return Delivery{Key: cb.RequestKey}, nil
	}
	if s.Pending.Partial != nil {
		return Delivery{}, errorsmod.Wrapf(ErrPartialExists, "request %s", s.Pending.Key)
	}
	a.logger.Debug("partial result received", "session", s.ID, "key", cb.RequestKey, "head", len(cb.Outcome.Payload), "total", cb.Total)
	return Delivery{
		Key: cb.RequestKey,
		Partial: &computation.Partial{
			Node:  cb.Node,
			Head:  append([]byte(nil), cb.Outcome.Payload...),
			Total: cb.Total,
		},
	}, nil
}

// AcceptSideChannel verifies the tail of a split result and reassembles the
// full outcome. The signature must verify against a registered node and the
// references must match the outstanding request; otherwise nothing changes.
func (a *Agent) AcceptSideChannel(s *session.Session, node string, raw []byte) (Delivery, error) {
	var p computation.SideChannelPayload
	if err := p.UnmarshalBinary(raw); err != nil {
		return Delivery{}, err
	}

	signer, ok := a.cluster.NodeByPubKey(p.Signer[:])
	if !ok {
		return Delivery{}, a.security(s, errorsmod.Wrap(ErrUnauthenticated, "signer is not a cluster node"))
	}
	if node != "" && signer.ID != node {
		return Delivery{}, a.security(s, errorsmod.Wrapf(ErrUnauthenticated, "payload signed by %q, submitted by %q", signer.ID, node))
	}
	if !p.VerifySignature() {
		return Delivery{}, a.security(s, errorsmod.Wrap(ErrUnauthenticated, "invalid data signature"))
	}

	req := s.Pending
	if req == nil {
		return Delivery{}, a.security(s, errorsmod.Wrap(ErrReferenceMismatch, "no outstanding request"))
	}
	if p.CompDefID != req.CompDefID {
		return Delivery{}, a.security(s, errorsmod.Wrapf(ErrReferenceMismatch, "compDefId %d, outstanding %d", p.CompDefID, req.CompDefID))
	}
	if p.QueueID != req.QueueID {
		return Delivery{}, a.security(s, errorsmod.Wrapf(ErrReferenceMismatch, "queueId %d, outstanding %d", p.QueueID, req.QueueID))
	}
	if p.OriginTx != req.OriginTx {
		return Delivery{}, a.security(s, errorsmod.Wrap(ErrReferenceMismatch, "origin tx does not match"))
	}
	if req.Partial == nil {
		return Delivery{}, errorsmod.Wrapf(ErrNoPartial, "request %s", req.Key)
	}

	full := make([]byte, 0, len(req.Partial.Head)+len(p.Data))
	full = append(full, req.Partial.Head...)
	full = append(full, p.Data...)
	if uint32(len(full)) != req.Partial.Total {
		return Delivery{}, errorsmod.Wrapf(ErrLengthMismatch, "got %d bytes, want %d", len(full), req.Partial.Total)
	}
	fields, err := computation.UnmarshalFields(full)
	if err != nil {
		return Delivery{}, err
	}
	a.logger.Debug("side-channel result reassembled", "session", s.ID, "key", req.Key, "bytes", len(full))
	return Delivery{Key: req.Key, Outcome: computation.Success{Fields: fields}}, nil
}

func (a *Agent) security(s *session.Session, err error) error {
	var id uint64
	if s != nil {
		id = s.ID
	}
	a.logger.Error("rejected cluster result", "security", true, "session", id, "err", err)
	return err
}

// Split encodes fields and cuts them at limit bytes. tail is empty when the
// whole result fits.
func Split(fields []computation.ResultField, limit int) (head []byte, tail []byte, total uint32, err error) {
	raw, err := computation.MarshalFields(fields)
	if err != nil {
		return nil, nil, 0, err
	}
	if limit <= 0 || len(raw) <= limit {
		return raw, nil, uint32(len(raw)), nil
	}
	return bytes.Clone(raw[:limit]), bytes.Clone(raw[limit:]), uint32(len(raw)), nil
}
