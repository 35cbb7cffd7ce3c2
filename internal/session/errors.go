package session

import (
	errorsmod "cosmossdk.io/errors"
)

const ModuleName = "session"

// Guard violations: the action is rejected before any request is queued.
var (
	ErrInvalidSession   = errorsmod.Register(ModuleName, 1, "invalid session")
	ErrWrongPhase       = errorsmod.Register(ModuleName, 2, "action not allowed in current phase")
	ErrAlreadyStood     = errorsmod.Register(ModuleName, 3, "player already stood")
	ErrRequestInFlight  = errorsmod.Register(ModuleName, 4, "computation already in flight")
	ErrHandFull         = errorsmod.Register(ModuleName, 5, "hand is full")
	ErrDoubleNotAllowed = errorsmod.Register(ModuleName, 6, "double down only allowed on the first two cards")
	ErrSessionClosed    = errorsmod.Register(ModuleName, 7, "session closed")
	ErrUnknownAction    = errorsmod.Register(ModuleName, 8, "unknown action")
	ErrTurnNotExpired   = errorsmod.Register(ModuleName, 9, "player turn has not timed out")
)

// Computation failures: retry the same action.
var (
	ErrComputationFailed  = errorsmod.Register(ModuleName, 20, "computation failed")
	ErrComputationTimeout = errorsmod.Register(ModuleName, 21, "computation timed out")
)

// Rejected outcomes: the session is left untouched.
var (
	ErrMalformedOutcome = errorsmod.Register(ModuleName, 30, "malformed outcome")
	ErrNonceReuse       = errorsmod.Register(ModuleName, 31, "nonce not greater than stored nonce")
)

var guardErrors = []error{
	ErrInvalidSession,
	ErrWrongPhase,
	ErrAlreadyStood,
	ErrRequestInFlight,
	ErrHandFull,
	ErrDoubleNotAllowed,
	ErrSessionClosed,
	ErrUnknownAction,
	ErrTurnNotExpired,
}

// IsGuardViolation reports whether err rejected an action outright, as
// opposed to a computation failing after it was queued.
func IsGuardViolation(err error) bool {
	return errorsmod.IsOf(err, guardErrors...)
}

// IsRetryable reports whether err is a computation failure or timeout.
func IsRetryable(err error) bool {
	return errorsmod.IsOf(err, ErrComputationFailed, ErrComputationTimeout)
}
