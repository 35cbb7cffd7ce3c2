package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/session"
)

// Query paths. All read committed state.
const (
	QueryPending = "/requests/pending"
	QueryCluster = "/cluster"
)

// AccountView is returned by /account/<addr>.
type AccountView struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey,omitempty"`
	Nonce   uint64 `json:"nonce"`
}

// NodeView is returned by /node/<id>.
type NodeView struct {
	Node  string `json:"node"`
	Nonce uint64 `json:"nonce"`
}

func SessionPath(id uint64) string { return "/session/" + strconv.FormatUint(id, 10) }

// DeckPath serves the deck the cluster fetches by reference.
func DeckPath(id uint64) string { return SessionPath(id) + "/deck" }

func AccountPath(addr string) string { return "/account/" + addr }

func NodePath(nodeID string) string { return "/node/" + nodeID }

func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	height := a.st.Height()
	v, err := a.query(strings.TrimSpace(req.Path))
	if err != nil {
		codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
		return &abci.QueryResponse{Code: code, Codespace: codespace, Log: logMsg, Height: height}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: height}, nil
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: height}, nil
}

func (a *App) query(path string) (any, error) {
	view := a.st.Cache()
	switch {
	case path == QueryPending:
		sessions, err := a.st.PendingSessions()
		if err != nil {
			return nil, err
		}
		reqs := make([]*computation.Request, 0, len(sessions))
		for _, s := range sessions {
			reqs = append(reqs, s.Pending)
		}
		return reqs, nil

	case path == QueryCluster:
		p, ok, err := view.Params()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorsmod.Wrap(computation.ErrClusterNotSet, "no genesis params")
		}
		return p, nil

	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		pub, err := view.AccountKey(addr)
		if err != nil {
			return nil, err
		}
		nonce, _, err := view.NonceMax(addr)
		if err != nil {
			return nil, err
		}
		return AccountView{Account: addr, PubKey: pub, Nonce: nonce}, nil

	case strings.HasPrefix(path, "/node/"):
		id := strings.TrimPrefix(path, "/node/")
		nonce, _, err := view.NodeNonceMax(id)
		if err != nil {
			return nil, err
		}
		return NodeView{Node: id, Nonce: nonce}, nil

	case strings.HasPrefix(path, "/session/"):
		rest := strings.TrimPrefix(path, "/session/")
		raw, sub, _ := strings.Cut(rest, "/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errorsmod.Wrapf(ErrBadTx, "invalid session id %q", raw)
		}
		s, err := a.readSession(id)
		if err != nil {
			return nil, err
		}
		switch sub {
		case "":
			return s, nil
		case "deck":
			return s.Deck, nil
		default:
			return nil, errorsmod.Wrapf(ErrBadTx, "unknown query path %q", path)
		}

	default:
		return nil, errorsmod.Wrapf(ErrBadTx, "unknown query path %q", path)
	}
}

func (a *App) readSession(id uint64) (*session.Session, error) {
	s, ok, err := a.st.Cache().Session(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return s, nil
	}
	s, ok, err = a.st.Archived(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorsmod.Wrapf(ErrSessionNotFound, "session %d", id)
	}
	return s, nil
}
