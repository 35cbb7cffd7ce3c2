package relayer

import errorsmod "cosmossdk.io/errors"

const ModuleName = "relayer"

var (
	ErrQuery     = errorsmod.Register(ModuleName, 1, "chain query failed")
	ErrBroadcast = errorsmod.Register(ModuleName, 2, "tx rejected by chain")
	ErrConfig    = errorsmod.Register(ModuleName, 3, "invalid relayer config")
)
