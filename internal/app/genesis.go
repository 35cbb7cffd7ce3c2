package app

import (
	"crypto/ed25519"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"

	"github.com/stanleykosi/veridian/internal/delivery"
	"github.com/stanleykosi/veridian/internal/session"
	"github.com/stanleykosi/veridian/internal/state"
)

// Genesis is the app_state document.
type Genesis struct {
	state.Params
	Accounts []GenesisAccount `json:"accounts,omitempty"`
}

type GenesisAccount struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"`
}

// ParseGenesis decodes app_state and fills defaults. A missing cluster is an
// error: nothing can run without one.
func ParseGenesis(raw []byte) (Genesis, error) {
	var g Genesis
	if len(raw) == 0 {
		return g, errorsmod.Wrap(ErrGenesis, "empty app_state")
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, errorsmod.Wrapf(ErrGenesis, "decode app_state: %v", err)
	}
	if err := g.Cluster.Validate(); err != nil {
		return g, err
	}
	if g.MaxDealerDraws == 0 {
		g.MaxDealerDraws = session.DefaultMaxDealerDraws
	}
	if g.ActionTimeoutSecs == 0 {
		g.ActionTimeoutSecs = session.DefaultActionTimeoutSecs
	}
	if g.InlineResultLimit == 0 {
		g.InlineResultLimit = delivery.DefaultInlineLimit
	}
	seen := map[string]bool{}
	for _, acct := range g.Accounts {
		if validAccountName(acct.Account) != nil || len(acct.PubKey) != ed25519.PublicKeySize {
			return g, errorsmod.Wrapf(ErrGenesis, "account %q: invalid account/pubKey", acct.Account)
		}
		if seen[acct.Account] {
			return g, errorsmod.Wrapf(ErrGenesis, "duplicate account %q", acct.Account)
		}
		seen[acct.Account] = true
	}
	return g, nil
}
