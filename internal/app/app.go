package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/stanleykosi/veridian/internal/codec"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/delivery"
	"github.com/stanleykosi/veridian/internal/session"
	"github.com/stanleykosi/veridian/internal/state"
)

const (
	AppVersion uint64 = 1
	Version           = "v1"
)

// App is the ABCI application hosting blackjack sessions. Transactions run
// one at a time under mu, each on its own cache over the block cache.
type App struct {
	*abci.BaseApplication

	logger log.Logger

	mu sync.Mutex
	st *state.Store

	// Staged between FinalizeBlock and Commit.
	block       *state.Cache
	blockHeight int64
	blockHash   []byte

	params  state.Params
	machine *session.Machine
	agent   *delivery.Agent
}

// New opens the store under <home>/data.
func New(home string, logger log.Logger) (*App, error) {
	st, err := state.Open(filepath.Join(home, "data"))
	if err != nil {
		return nil, err
	}
	return NewWithStore(st, logger)
}

func NewWithStore(st *state.Store, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		logger:          logger.With("module", ModuleName),
		st:              st,
	}
	p, ok, err := st.Cache().Params()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := a.configure(p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st.Close()
}

// configure builds the session machine and delivery agent for p. Both are
// fixed for the life of the chain.
func (a *App) configure(p state.Params) error {
	m, err := session.NewMachine(session.Config{
		Cluster:           p.Cluster,
		MaxDealerDraws:    p.MaxDealerDraws,
		ActionTimeoutSecs: p.ActionTimeoutSecs,
	}, a.logger)
	if err != nil {
		return err
	}
	agent, err := delivery.NewAgent(p.Cluster, a.logger)
	if err != nil {
		return err
	}
	a.params = p
	a.machine = m
	a.agent = agent
	return nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "veridian",
		Version:          Version,
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height(),
		LastBlockAppHash: a.st.AppHash(),
	}, nil
}

func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkTxError(errorsmod.Wrap(ErrBadTx, err.Error())), nil
	}
	if !knownTxTypes[env.Type] {
		return checkTxError(errorsmod.Wrapf(ErrUnknownTx, "%q", env.Type)), nil
	}
	if !unsignedTxTypes[env.Type] {
		if err := requireSignedEnvelope(env); err != nil {
			return checkTxError(err), nil
		}
	}
	// Signatures and nonces are checked against state in FinalizeBlock.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func checkTxError(err error) *abci.CheckTxResponse {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Code: code, Codespace: codespace, Log: logMsg}
}

func (a *App) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, err := ParseGenesis(req.AppStateBytes)
	if err != nil {
		return nil, err
	}
	if err := a.configure(g.Params); err != nil {
		return nil, errorsmod.Wrap(ErrGenesis, err.Error())
	}
	c := a.blockCache()
	if err := c.SetParams(g.Params); err != nil {
		return nil, err
	}
	for _, acct := range g.Accounts {
		c.SetAccountKey(acct.Account, acct.PubKey)
	}
	a.logger.Info("genesis applied", "cluster", g.Cluster.ID, "nodes", len(g.Cluster.Nodes), "accounts", len(g.Accounts))
	return &abci.InitChainResponse{}, nil
}

func (a *App) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.blockCache()
	now := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		txResults = append(txResults, a.deliverTx(c, txBytes, req.Height, now))
	}

	a.blockHeight = req.Height
	a.blockHash = a.st.NextAppHash(req.Height, c)
	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.blockHash,
	}, nil
}

func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.block == nil || a.blockHeight == 0 {
		return &abci.CommitResponse{}, nil
	}
	hash, err := a.st.Commit(a.blockHeight, a.block)
	if err != nil {
		// Halt loudly rather than diverge.
		return nil, err
	}
	if !bytes.Equal(hash, a.blockHash) {
		return nil, fmt.Errorf("commit: app hash %X differs from finalized %X", hash, a.blockHash)
	}
	a.block = nil
	a.blockHeight = 0
	a.blockHash = nil
	return &abci.CommitResponse{}, nil
}

func (a *App) blockCache() *state.Cache {
	if a.block == nil {
		a.block = a.st.Cache()
	}
	return a.block
}

// txRef is the CometBFT hash of the tx bytes.
func txRef(txBytes []byte) computation.TxRef {
	var ref computation.TxRef
	copy(ref[:], cmttypes.Tx(txBytes).Hash())
	return ref
}
