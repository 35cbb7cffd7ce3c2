package session

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"

	"github.com/stanleykosi/veridian/internal/blackjack"
	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
)

type ResultKind string

const (
	ResultApplied   ResultKind = "applied"
	ResultDiscarded ResultKind = "discarded"
	ResultFailed    ResultKind = "failed"
)

// Result reports what Complete did. Err is set for ResultFailed and wraps
// ErrComputationFailed or ErrComputationTimeout.
type Result struct {
	Kind   ResultKind
	Events []Event
	Err    error
}

// Complete applies the outcome of the request identified by key.
//
// An outcome for any request other than the outstanding one is discarded.
// Failure and Timeout clear the outstanding request and leave the game as it
// was. Success is applied all-or-nothing; if it cannot be applied an error is
// returned and s is untouched.
func (m *Machine) Complete(s *Session, key string, out computation.Outcome, env Env) (Result, error) {
	if s == nil {
		return Result{}, errorsmod.Wrap(ErrInvalidSession, "nil session")
	}
	if s.Pending == nil || s.Pending.Key != key {
		m.logger.Info("discarding stale outcome", "session", s.ID, "key", key)
		return Result{
			Kind:   ResultDiscarded,
			Events: []Event{{Type: EventTypeOutcomeDiscarded, Attrs: sessionAttrs(s, "key", key)}},
		}, nil
	}

	switch o := out.(type) {
	case computation.Success:
		next := s.Clone()
		events, err := m.apply(next, o, env)
		if err != nil {
			m.logger.Error("rejecting outcome", "session", s.ID, "circuit", s.Pending.Circuit, "err", err)
			return Result{}, err
		}
		next.Pending = nil
		next.LastFailure = ""
		next.UpdatedHeight = env.Height
		*s = *next
		return Result{Kind: ResultApplied, Events: events}, nil
	case computation.Failure:
		return m.fail(s, errorsmod.Wrap(ErrComputationFailed, o.Reason), env), nil
	case computation.Timeout:
		return m.fail(s, errorsmod.Wrap(ErrComputationTimeout, string(s.Pending.Circuit)), env), nil
	default:
		return Result{}, errorsmod.Wrapf(ErrMalformedOutcome, "unexpected outcome %T", out)
	}
}

// fail records a failed computation. Only the outstanding marker changes so
// the same action can be issued again.
func (m *Machine) fail(s *Session, err error, env Env) Result {
	circuit := s.Pending.Circuit
	key := s.Pending.Key
	s.Pending = nil
	s.LastFailure = err.Error()
	s.UpdatedHeight = env.Height
	// The player gets a full window to retry. On overflow the old deadline
	// stays.
	if s.Phase == PhasePlayerTurn {
		_ = m.armActionDeadline(s, env)
	}
	m.logger.Warn("computation failed", "session", s.ID, "circuit", circuit, "err", err)
	return Result{
		Kind: ResultFailed,
		Err:  err,
		Events: []Event{{Type: EventTypeComputationFailed, Attrs: sessionAttrs(s,
			"circuit", string(circuit),
			"key", key,
			"reason", err.Error(),
			"retryable", "true",
		)}},
	}
}

func (m *Machine) apply(s *Session, out computation.Success, env Env) ([]Event, error) {
	switch c := s.Pending.Circuit; c {
	case computation.CircuitShuffleAndDeal:
		return m.applyDeal(s, out, env)
	case computation.CircuitPlayerHit, computation.CircuitDoubleDown:
		return m.applyHit(s, c, out, env)
	case computation.CircuitPlayerStand:
		return m.applyStand(s, out)
	case computation.CircuitDealerPlay:
		return m.applyDealerPlay(s, out)
	case computation.CircuitResolveGame:
		return m.applyResolve(s, out)
	default:
		return nil, errorsmod.Wrapf(computation.ErrUnknownCircuit, "%q", c)
	}
}

func (m *Machine) applyDeal(s *Session, out computation.Success, env Env) ([]Event, error) {
	r, err := computation.DecodeDealResult(out)
	if err != nil {
		return nil, err
	}
	if err := advanceNonce(s, "deck", s.Deck, r.Deck); err != nil {
		return nil, err
	}
	if err := advanceNonce(s, "dealerHand", s.DealerHand, r.DealerHand); err != nil {
		return nil, err
	}
	if err := advanceNonce(s, "playerHand", s.PlayerHand, r.PlayerHand); err != nil {
		return nil, err
	}
	faceUp := cards.Card(r.DealerFaceUp)
	if !faceUp.Valid() {
		return nil, malformedf(s, "dealer face-up card %d out of range", r.DealerFaceUp)
	}

	s.Deck = r.Deck
	s.DealerHand = r.DealerHand
	s.PlayerHand = r.PlayerHand
	s.PlayerHandSize = blackjack.InitialHandSize
	s.DealerHandSize = blackjack.InitialHandSize
	s.DealerFaceUp = faceUp
	s.PlayerStood = false
	s.PlayerDoubled = false
	s.PlayerBust = false
	s.Phase = PhasePlayerTurn
	if err := m.armActionDeadline(s, env); err != nil {
		return nil, err
	}

	m.logger.Info("cards dealt", "session", s.ID, "dealerFaceUp", faceUp.String())
	return []Event{{Type: EventTypeCardsDealt, Attrs: sessionAttrs(s,
		"dealerFaceUp", faceUp.String(),
		"playerHandSize", u8String(s.PlayerHandSize),
	)}}, nil
}

// applyHit handles both hit and double down. A hit keeps the turn unless it
// busts; a double down always ends it.
func (m *Machine) applyHit(s *Session, c computation.Circuit, out computation.Success, env Env) ([]Event, error) {
	r, err := computation.DecodeHitResult(c, out)
	if err != nil {
		return nil, err
	}
	if err := advanceNonce(s, "playerHand", s.PlayerHand, r.PlayerHand); err != nil {
		return nil, err
	}
	if int(s.PlayerHandSize) >= cards.HandSlots {
		return nil, malformedf(s, "player hand already full")
	}

	s.PlayerHand = r.PlayerHand
	s.PlayerHandSize++
	s.PlayerBust = r.Bust

	typ := EventTypePlayerHit
	switch {
	case c == computation.CircuitDoubleDown:
		typ = EventTypePlayerDoubled
		s.PlayerDoubled = true
		s.PlayerStood = true
		s.endPlayerTurn()
	case r.Bust:
		s.endPlayerTurn()
	default:
		if err := m.armActionDeadline(s, env); err != nil {
			return nil, err
		}
	}

	m.logger.Info("player drew", "session", s.ID, "size", s.PlayerHandSize, "bust", r.Bust, "double", s.PlayerDoubled)
	return []Event{{Type: typ, Attrs: sessionAttrs(s,
		"playerHandSize", u8String(s.PlayerHandSize),
		"bust", strconv.FormatBool(r.Bust),
		"stake", strconv.FormatUint(s.Stake(), 10),
	)}}, nil
}

func (m *Machine) applyStand(s *Session, out computation.Success) ([]Event, error) {
	r, err := computation.DecodeStandResult(out)
	if err != nil {
		return nil, err
	}
	s.PlayerStood = true
	s.PlayerBust = s.PlayerBust || r.Bust
	s.endPlayerTurn()

	return []Event{{Type: EventTypePlayerStood, Attrs: sessionAttrs(s,
		"playerHandSize", u8String(s.PlayerHandSize),
		"bust", strconv.FormatBool(s.PlayerBust),
	)}}, nil
}

func (m *Machine) applyDealerPlay(s *Session, out computation.Success) ([]Event, error) {
	r, err := computation.DecodeDealerPlayResult(out)
	if err != nil {
		return nil, err
	}
	if err := advanceNonce(s, "dealerHand", s.DealerHand, r.DealerHand); err != nil {
		return nil, err
	}
	if r.DealerDisplay.Nonce <= sharedNonce(s) {
		return nil, errorsmod.Wrapf(ErrNonceReuse, "session %d dealerDisplay: nonce %d <= %d", s.ID, r.DealerDisplay.Nonce, sharedNonce(s))
	}
	maxSize := int(s.DealerHandSize) + int(m.dealerDraws(s))
	if r.DealerSize < s.DealerHandSize || int(r.DealerSize) > maxSize {
		return nil, malformedf(s, "dealer size %d outside [%d,%d]", r.DealerSize, s.DealerHandSize, maxSize)
	}

	s.DealerHand = r.DealerHand
	s.DealerDisplay = r.DealerDisplay
	s.DealerHandSize = r.DealerSize
	s.Phase = PhaseResolving

	m.logger.Info("dealer played", "session", s.ID, "size", r.DealerSize)
	return []Event{{Type: EventTypeDealerPlayed, Attrs: sessionAttrs(s,
		"dealerHandSize", u8String(s.DealerHandSize),
	)}}, nil
}

func (m *Machine) applyResolve(s *Session, out computation.Success) ([]Event, error) {
	r, err := computation.DecodeResolveResult(out)
	if err != nil {
		return nil, err
	}
	w, err := blackjack.ParseWinner(r.Winner)
	if err != nil {
		return nil, malformedf(s, "%v", err)
	}
	pv, dv := int(r.PlayerValue), int(r.DealerValue)
	if expect := blackjack.Resolve(pv, dv); expect != w {
		return nil, malformedf(s, "winner %s inconsistent with values %d/%d", w, pv, dv)
	}
	if blackjack.Bust(pv) != s.PlayerBust {
		return nil, malformedf(s, "player value %d disagrees with recorded bust=%t", pv, s.PlayerBust)
	}
	natural := !s.PlayerDoubled && s.PlayerHandSize == blackjack.InitialHandSize && pv == blackjack.Blackjack
	payout, err := blackjack.Settle(s.Bet, s.PlayerDoubled, w, natural)
	if err != nil {
		return nil, malformedf(s, "%v", err)
	}

	s.Winner = w
	s.PlayerValue = r.PlayerValue
	s.DealerValue = r.DealerValue
	s.DealerBust = blackjack.Bust(dv)
	s.Payout = payout
	s.Phase = PhaseResolved

	m.logger.Info("game resolved", "session", s.ID, "winner", w.String(), "payout", payout)
	return []Event{{Type: EventTypeGameResolved, Attrs: sessionAttrs(s,
		"winner", w.String(),
		"playerValue", u8String(r.PlayerValue),
		"dealerValue", u8String(r.DealerValue),
		"payout", strconv.FormatUint(payout, 10),
	)}}, nil
}

func advanceNonce(s *Session, field string, stored, next computation.Encrypted) error {
	if next.Nonce <= stored.Nonce {
		return errorsmod.Wrapf(ErrNonceReuse, "session %d %s: nonce %d <= %d", s.ID, field, next.Nonce, stored.Nonce)
	}
	return nil
}

func (s *Session) endPlayerTurn() {
	s.Phase = PhaseDealerTurn
	s.ActionDeadline = 0
}
