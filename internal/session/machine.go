package session

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/stanleykosi/veridian/internal/blackjack"
	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
)

const (
	DefaultMaxDealerDraws    uint8  = 7
	DefaultActionTimeoutSecs uint64 = 60
)

type Config struct {
	Cluster computation.Cluster

	// MaxDealerDraws bounds the dealer loop. It is a safety limit, further
	// capped by the free slots of the dealer hand.
	MaxDealerDraws uint8

	// ActionTimeoutSecs is how long the player may idle before anyone can
	// force a stand. Zero disables the timeout.
	ActionTimeoutSecs uint64
}

// Env is the ledger context of one invocation.
type Env struct {
	Height  int64
	Time    int64 // unix seconds
	TxHash  computation.TxRef
	QueueID uint64
}

// Machine drives sessions through their phases. It owns no session state;
// callers load, pass and persist the record around each call.
type Machine struct {
	cfg    Config
	logger log.Logger
}

func NewMachine(cfg Config, logger log.Logger) (*Machine, error) {
	if err := cfg.Cluster.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxDealerDraws == 0 {
		cfg.MaxDealerDraws = DefaultMaxDealerDraws
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Machine{cfg: cfg, logger: logger.With("module", ModuleName)}, nil
}

func (m *Machine) Cluster() computation.Cluster {
	return m.cfg.Cluster
}

// Begin checks the guards for action and records a new outstanding request
// on s. It returns a copy of that request for submission.
func (m *Machine) Begin(s *Session, action Action, env Env) (*computation.Request, error) {
	if err := m.guard(s, action); err != nil {
		return nil, err
	}
	circuit, args, recipient := m.request(s, action)

	seq := s.RequestSeq + 1
	req := &computation.Request{
		Key:          computation.NewRequestKey(s.ID, seq),
		SessionID:    s.ID,
		Circuit:      circuit,
		CompDefID:    circuit.CompDefID(),
		Args:         args,
		Recipient:    recipient,
		QueueID:      env.QueueID,
		OriginTx:     env.TxHash,
		QueuedHeight: env.Height,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.RequestSeq = seq
	s.Pending = req
	s.LastFailure = ""
	s.UpdatedHeight = env.Height

	m.logger.Debug("computation queued", "session", s.ID, "circuit", circuit, "key", req.Key, "queue", env.QueueID)
	return req.Clone(), nil
}

// QueuedEvent describes a request returned by Begin.
func QueuedEvent(req *computation.Request) Event {
	return Event{Type: EventTypeComputationQueued, Attrs: map[string]string{
		"sessionId": strconv.FormatUint(req.SessionID, 10),
		"circuit":   string(req.Circuit),
		"compDefId": strconv.FormatUint(uint64(req.CompDefID), 10),
		"key":       req.Key,
		"queueId":   strconv.FormatUint(req.QueueID, 10),
	}}
}

func (m *Machine) guard(s *Session, action Action) error {
	if s == nil {
		return errorsmod.Wrap(ErrInvalidSession, "nil session")
	}
	if s.Closed {
		return errorsmod.Wrapf(ErrSessionClosed, "session %d", s.ID)
	}
	if s.Pending != nil {
		return errorsmod.Wrapf(ErrRequestInFlight, "session %d is waiting on %s (%s)", s.ID, s.Pending.Circuit, s.Pending.Key)
	}

	want, ok := actionPhase[action]
	if !ok {
		return errorsmod.Wrapf(ErrUnknownAction, "%q", action)
	}
	if s.Phase != want {
		return errorsmod.Wrapf(ErrWrongPhase, "%s not allowed in phase %s", action, s.Phase)
	}

	switch action {
	case ActionHit:
		if s.PlayerStood {
			return errorsmod.Wrap(ErrAlreadyStood, "cannot hit")
		}
		if int(s.PlayerHandSize) >= cards.HandSlots {
			return errorsmod.Wrapf(ErrHandFull, "player holds %d cards", s.PlayerHandSize)
		}
	case ActionDoubleDown:
		if s.PlayerStood {
			return errorsmod.Wrap(ErrAlreadyStood, "cannot double down")
		}
		if s.PlayerHandSize != blackjack.InitialHandSize {
			return errorsmod.Wrapf(ErrDoubleNotAllowed, "player holds %d cards", s.PlayerHandSize)
		}
	case ActionStand:
		if s.PlayerStood {
			return errorsmod.Wrap(ErrAlreadyStood, "cannot stand twice")
		}
	}
	return nil
}

var actionPhase = map[Action]Phase{
	ActionDeal:       PhaseInitial,
	ActionHit:        PhasePlayerTurn,
	ActionDoubleDown: PhasePlayerTurn,
	ActionStand:      PhasePlayerTurn,
	ActionDealerPlay: PhaseDealerTurn,
	ActionResolve:    PhaseResolving,
}

var actionCircuit = map[Action]computation.Circuit{
	ActionDeal:       computation.CircuitShuffleAndDeal,
	ActionHit:        computation.CircuitPlayerHit,
	ActionDoubleDown: computation.CircuitDoubleDown,
	ActionStand:      computation.CircuitPlayerStand,
	ActionDealerPlay: computation.CircuitDealerPlay,
	ActionResolve:    computation.CircuitResolveGame,
}

// request builds the argument list for action. The deck always travels by
// reference; hands travel by value.
func (m *Machine) request(s *Session, action Action) (computation.Circuit, []computation.Argument, computation.Recipient) {
	circuit := actionCircuit[action]
	recipient := computation.Recipient{Domain: computation.DomainShared, PubKey: append([]byte(nil), s.PlayerPubKey...)}
	deck := computation.ByRef(DeckAccount(s.ID), 0, computation.DeckCiphertexts)

	var args []computation.Argument
	switch action {
	case ActionDeal:
		args = []computation.Argument{
			computation.PubKey(s.PlayerPubKey),
			computation.Nonce(s.ClientNonce),
			computation.Nonce(s.Deck.Nonce),
			computation.Nonce(s.DealerHand.Nonce),
		}
	case ActionHit, ActionDoubleDown:
		args = []computation.Argument{
			deck,
			computation.Nonce(s.Deck.Nonce),
			computation.ByValue(s.PlayerHand),
			computation.PubKey(s.PlayerPubKey),
			computation.U8(s.PlayerHandSize),
			computation.U8(s.DealerHandSize),
		}
	case ActionStand:
		args = []computation.Argument{
			computation.ByValue(s.PlayerHand),
			computation.PubKey(s.PlayerPubKey),
			computation.U8(s.PlayerHandSize),
		}
	case ActionDealerPlay:
		args = []computation.Argument{
			deck,
			computation.Nonce(s.Deck.Nonce),
			computation.ByValue(s.DealerHand),
			computation.PubKey(s.PlayerPubKey),
			computation.Nonce(sharedNonce(s)),
			computation.U8(s.PlayerHandSize),
			computation.U8(s.DealerHandSize),
			computation.U8(m.dealerDraws(s)),
		}
	case ActionResolve:
		args = []computation.Argument{
			computation.ByValue(s.PlayerHand),
			computation.PubKey(s.PlayerPubKey),
			computation.U8(s.PlayerHandSize),
			computation.ByValue(s.DealerHand),
			computation.U8(s.DealerHandSize),
		}
	}
	return circuit, args, recipient
}

// dealerDraws is the iteration bound handed to dealer_play.
func (m *Machine) dealerDraws(s *Session) uint8 {
	free := cards.HandSlots - int(s.DealerHandSize)
	if free < 0 {
		free = 0
	}
	if int(m.cfg.MaxDealerDraws) < free {
		return m.cfg.MaxDealerDraws
	}
	return uint8(free)
}

// sharedNonce is the highest nonce used so far under the player's shared key.
func sharedNonce(s *Session) uint64 {
	n := s.PlayerHand.Nonce
	if s.DealerDisplay.Nonce > n {
		n = s.DealerDisplay.Nonce
	}
	return n
}

func sessionAttrs(s *Session, kv ...string) map[string]string {
	attrs := map[string]string{"sessionId": strconv.FormatUint(s.ID, 10)}
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return attrs
}

func u8String(v uint8) string {
	return strconv.FormatUint(uint64(v), 10)
}

func malformedf(s *Session, format string, args ...any) error {
	return errorsmod.Wrapf(ErrMalformedOutcome, "session %d: "+format, append([]any{s.ID}, args...)...)
}
