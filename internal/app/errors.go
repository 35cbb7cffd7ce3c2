package app

import errorsmod "cosmossdk.io/errors"

const ModuleName = "app"

var (
	ErrBadTx           = errorsmod.Register(ModuleName, 1, "bad tx")
	ErrUnauthorized    = errorsmod.Register(ModuleName, 2, "unauthorized")
	ErrSessionNotFound = errorsmod.Register(ModuleName, 3, "session not found")
	ErrReplay          = errorsmod.Register(ModuleName, 4, "replayed tx.nonce")
	ErrGenesis         = errorsmod.Register(ModuleName, 5, "invalid genesis")
	ErrUnknownTx       = errorsmod.Register(ModuleName, 6, "unknown tx type")
)
