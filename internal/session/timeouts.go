package session

import (
	"fmt"
	"math"
	"strconv"

	errorsmod "cosmossdk.io/errors"

	"github.com/stanleykosi/veridian/internal/computation"
)

func (m *Machine) armActionDeadline(s *Session, env Env) error {
	if m.cfg.ActionTimeoutSecs == 0 {
		s.ActionDeadline = 0
		return nil
	}
	deadline, err := addInt64AndU64Checked(env.Time, m.cfg.ActionTimeoutSecs, "action deadline")
	if err != nil {
		return err
	}
	s.ActionDeadline = deadline
	return nil
}

// TurnExpired reports whether the player has idled past the action deadline
// with nothing in flight.
func TurnExpired(s *Session, now int64) bool {
	return s != nil &&
		!s.Closed &&
		s.Phase == PhasePlayerTurn &&
		s.Pending == nil &&
		s.ActionDeadline > 0 &&
		now >= s.ActionDeadline
}

// Tick forces a stand for a player whose turn has expired. Anyone may call it.
func (m *Machine) Tick(s *Session, env Env) (*computation.Request, []Event, error) {
	if !TurnExpired(s, env.Time) {
		if s == nil {
			return nil, nil, errorsmod.Wrap(ErrInvalidSession, "nil session")
		}
		return nil, nil, errorsmod.Wrapf(ErrTurnNotExpired, "session %d deadline %d now %d", s.ID, s.ActionDeadline, env.Time)
	}
	deadline := s.ActionDeadline
	req, err := m.Begin(s, ActionStand, env)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Info("player turn timed out", "session", s.ID, "deadline", deadline)
	return req, []Event{
		{Type: EventTypeTurnTimedOut, Attrs: sessionAttrs(s, "deadline", strconv.FormatInt(deadline, 10))},
		QueuedEvent(req),
	}, nil
}

// Close archives a resolved session. After this the record is read-only.
func (m *Machine) Close(s *Session, env Env) (Event, error) {
	if s == nil {
		return Event{}, errorsmod.Wrap(ErrInvalidSession, "nil session")
	}
	if s.Closed {
		return Event{}, errorsmod.Wrapf(ErrSessionClosed, "session %d", s.ID)
	}
	if s.Pending != nil {
		return Event{}, errorsmod.Wrapf(ErrRequestInFlight, "session %d", s.ID)
	}
	if s.Phase != PhaseResolved {
		return Event{}, errorsmod.Wrapf(ErrWrongPhase, "close not allowed in phase %s", s.Phase)
	}
	s.Closed = true
	s.UpdatedHeight = env.Height
	return Event{Type: EventTypeSessionClosed, Attrs: sessionAttrs(s,
		"winner", s.Winner.String(),
		"payout", strconv.FormatUint(s.Payout, 10),
	)}, nil
}

func addInt64AndU64Checked(a int64, b uint64, field string) (int64, error) {
	if b > math.MaxInt64 {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	if a > 0 && int64(b) > math.MaxInt64-a {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return a + int64(b), nil
}
