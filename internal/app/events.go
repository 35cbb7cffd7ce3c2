package app

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/stanleykosi/veridian/internal/session"
)

func toABCIEvent(e session.Event) abci.Event {
	ev := abci.Event{Type: e.Type}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: e.Attrs[k], Index: true})
	}
	return ev
}

func okEvents(events ...session.Event) *abci.ExecTxResult {
	res := &abci.ExecTxResult{Code: 0}
	for _, e := range events {
		res.Events = append(res.Events, toABCIEvent(e))
	}
	return res
}

func errResult(err error) *abci.ExecTxResult {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: logMsg}
}
