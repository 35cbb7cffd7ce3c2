package relayer

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/stanleykosi/veridian/internal/app"
	"github.com/stanleykosi/veridian/internal/codec"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/delivery"
	"github.com/stanleykosi/veridian/internal/mpc"
	"github.com/stanleykosi/veridian/internal/state"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultDeadline = 30 * time.Second
	DefaultWorkers  = 4
)

// Executor runs queued computations. *mpc.Cluster is the in-process one.
type Executor interface {
	Execute(ctx context.Context, req *computation.Request, refs mpc.RefResolver) (computation.Outcome, error)
	NodeID() string
	SignSideChannel(req *computation.Request, data []byte) computation.SideChannelPayload
}

type Config struct {
	NodeKey  ed25519.PrivateKey
	Interval time.Duration
	// Deadline bounds one execution. A request still pending this long
	// after its outcome was delivered is answered with Timeout.
	Deadline time.Duration
	Workers  int
}

// Relayer carries pending requests to the executor and outcomes back to the
// chain.
type Relayer struct {
	cfg    Config
	chain  Chain
	exec   Executor
	clock  quartz.Clock
	logger log.Logger

	limit int

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool
	running   map[string]bool
	delivered map[string]time.Time

	submit sync.Mutex
}

func New(cfg Config, chain Chain, exec Executor, clock quartz.Clock, logger log.Logger) (*Relayer, error) {
	if len(cfg.NodeKey) != ed25519.PrivateKeySize {
		return nil, errorsmod.Wrap(ErrConfig, "node key must be an ed25519 private key")
	}
	if chain == nil || exec == nil {
		return nil, errorsmod.Wrap(ErrConfig, "missing chain or executor")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Relayer{
		cfg:       cfg,
		chain:     chain,
		exec:      exec,
		clock:     clock,
		logger:    logger.With("module", ModuleName, "node", exec.NodeID()),
		running:   map[string]bool{},
		delivered: map[string]time.Time{},
	}, nil
}

// Run polls until ctx is done.
func (r *Relayer) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("relayer started", "interval", r.cfg.Interval, "deadline", r.cfg.Deadline, "workers", r.cfg.Workers)
	for {
		if err := r.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("relay step failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step relays every pending request once and waits for the batch.
func (r *Relayer) Step(ctx context.Context) error {
	if r.limit == 0 {
		var p state.Params
		if err := queryJSON(ctx, r.chain, app.QueryCluster, &p); err != nil {
			return err
		}
		r.limit = int(p.InlineResultLimit)
		if r.limit == 0 {
			r.limit = delivery.DefaultInlineLimit
		}
	}

	var pending []*computation.Request
	if err := queryJSON(ctx, r.chain, app.QueryPending, &pending); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	live := make(map[string]bool, len(pending))
	for _, req := range pending {
		live[req.Key] = true
		switch r.claim(req.Key) {
		case claimRun:
			g.Go(func() error {
				defer r.release(req.Key)
				r.relay(gctx, req)
				return nil
			})
		case claimExpired:
			g.Go(func() error {
				defer r.release(req.Key)
				r.logger.Warn("delivered outcome never applied, timing out", "session", req.SessionID, "key", req.Key)
				r.deliver(gctx, req, computation.Timeout{})
				return nil
			})
		}
	}
	err := g.Wait()
	r.forget(live)
	return err
}

type claim int

const (
	claimSkip claim = iota
	claimRun
	claimExpired
)

func (r *Relayer) claim(key string) claim {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[key] {
		return claimSkip
	}
	at, ok := r.delivered[key]
	switch {
	case !ok:
		r.running[key] = true
		return claimRun
	case r.clock.Since(at) >= r.cfg.Deadline:
		r.running[key] = true
		return claimExpired
	default:
		return claimSkip
	}
}

func (r *Relayer) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, key)
}

// forget drops delivery records for requests the chain no longer holds.
func (r *Relayer) forget(live map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.delivered {
		if !live[key] {
			delete(r.delivered, key)
		}
	}
}

// relay executes req under the deadline and delivers whatever came back.
func (r *Relayer) relay(ctx context.Context, req *computation.Request) {
	ectx, cancel := context.WithCancel(ctx)
	defer cancel()

	expired := make(chan struct{})
	timer := r.clock.AfterFunc(r.cfg.Deadline, func() {
		close(expired)
		cancel()
	})
	defer timer.Stop()

	out, err := r.exec.Execute(ectx, req, chainRefs{chain: r.chain})
	if err != nil {
		select {
		case <-expired:
			r.logger.Warn("computation deadline exceeded", "session", req.SessionID, "circuit", req.Circuit, "key", req.Key)
			out = computation.Timeout{}
		default:
			// Left pending; the next poll tries again.
			r.logger.Error("computation did not run", "session", req.SessionID, "key", req.Key, "err", err)
			return
		}
	}
	r.deliver(ctx, req, out)
}

// deliver submits out for req, splitting results over the inline limit.
func (r *Relayer) deliver(ctx context.Context, req *computation.Request, out computation.Outcome) {
	txs, err := r.callbackTxs(req, out)
	if err != nil {
		r.logger.Error("cannot encode outcome", "session", req.SessionID, "key", req.Key, "err", err)
		return
	}
	if err := r.broadcast(ctx, txs); err != nil {
		r.logger.Error("delivery failed", "session", req.SessionID, "key", req.Key, "err", err)
		return
	}

	r.mu.Lock()
	r.delivered[req.Key] = r.clock.Now()
	r.mu.Unlock()
	r.logger.Info("outcome delivered", "session", req.SessionID, "circuit", req.Circuit, "status", out.Status(), "txs", len(txs))
}

type pendingTx struct {
	typ   string
	value any
}

func (r *Relayer) callbackTxs(req *computation.Request, out computation.Outcome) ([]pendingTx, error) {
	node := r.exec.NodeID()
	cb := codec.CallbackTx{NodeID: node, SessionID: req.SessionID, RequestKey: req.Key, Outcome: computation.NewEnvelope(out)}

	success, ok := out.(computation.Success)
	if !ok {
		return []pendingTx{{codec.TypeCallback, cb}}, nil
	}
	head, tail, total, err := delivery.Split(success.Fields, r.limit)
	if err != nil {
		return nil, err
	}
	if len(tail) == 0 {
		return []pendingTx{{codec.TypeCallback, cb}}, nil
	}
	payload, err := r.exec.SignSideChannel(req, tail).MarshalBinary()
	if err != nil {
		return nil, err
	}
	cb.Outcome = computation.Envelope{Status: computation.StatusSuccess, Payload: head}
	cb.TotalLen = total
	return []pendingTx{
		{codec.TypeCallback, cb},
		{codec.TypeCallbackLarge, codec.CallbackLargeTx{NodeID: node, SessionID: req.SessionID, RequestKey: req.Key, Payload: payload}},
	}, nil
}

// broadcast signs and submits txs in order. Submission is serialized so
// nonces reach the mempool in sequence.
func (r *Relayer) broadcast(ctx context.Context, txs []pendingTx) error {
	r.submit.Lock()
	defer r.submit.Unlock()

	if !r.nonceInit {
		var node app.NodeView
		if err := queryJSON(ctx, r.chain, app.NodePath(r.exec.NodeID()), &node); err != nil {
			return err
		}
		r.nonce = node.Nonce
		r.nonceInit = true
	}
	for _, t := range txs {
		b, err := codec.NewSignedTx(t.typ, t.value, r.nonce+1, r.exec.NodeID(), r.cfg.NodeKey)
		if err != nil {
			return err
		}
		if err := r.chain.Broadcast(ctx, b); err != nil {
			// Resync with the chain next time.
			r.nonceInit = false
			return err
		}
		r.nonce++
	}
	return nil
}
