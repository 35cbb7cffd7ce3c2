package computation

import errorsmod "cosmossdk.io/errors"

const ModuleName = "computation"

var (
	ErrInvalidRequest   = errorsmod.Register(ModuleName, 1, "invalid computation request")
	ErrUnknownCircuit   = errorsmod.Register(ModuleName, 2, "unknown circuit")
	ErrMalformedPayload = errorsmod.Register(ModuleName, 3, "malformed result payload")
	ErrMalformedOutcome = errorsmod.Register(ModuleName, 4, "malformed computation outcome")
	ErrResultShape      = errorsmod.Register(ModuleName, 5, "result fields do not match circuit")
	ErrClusterNotSet    = errorsmod.Register(ModuleName, 6, "cluster not set")
)
