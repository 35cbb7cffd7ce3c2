package delivery

import errorsmod "cosmossdk.io/errors"

const ModuleName = "delivery"

var (
	ErrUnauthenticated   = errorsmod.Register(ModuleName, 1, "result failed authentication")
	ErrReferenceMismatch = errorsmod.Register(ModuleName, 2, "result does not reference the outstanding request")
	ErrUnknownNode       = errorsmod.Register(ModuleName, 3, "unknown cluster node")
	ErrNoPartial         = errorsmod.Register(ModuleName, 4, "no partial result awaiting side channel")
	ErrPartialExists     = errorsmod.Register(ModuleName, 5, "partial result already received")
	ErrLengthMismatch    = errorsmod.Register(ModuleName, 6, "reassembled result length mismatch")
	ErrInvalidCallback   = errorsmod.Register(ModuleName, 7, "invalid callback")
)

// IsAuthenticityFailure reports a security-relevant rejection, as opposed to
// an ordinary computation failure.
func IsAuthenticityFailure(err error) bool {
	return errorsmod.IsOf(err, ErrUnauthenticated, ErrReferenceMismatch, ErrUnknownNode)
}
