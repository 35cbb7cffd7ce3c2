package mpc

import errorsmod "cosmossdk.io/errors"

const ModuleName = "mpc"

var (
	// ErrAborted is a circuit-level abort. It is reported to the chain as a
	// Failure outcome.
	ErrAborted    = errorsmod.Register(ModuleName, 1, "circuit aborted")
	ErrBadConfig  = errorsmod.Register(ModuleName, 2, "invalid cluster config")
	ErrRefMissing = errorsmod.Register(ModuleName, 3, "referenced data unavailable")
)

func abortf(format string, args ...any) error {
	return errorsmod.Wrapf(ErrAborted, format, args...)
}
