package app

import (
	"encoding/json"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/stanleykosi/veridian/internal/codec"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/delivery"
	"github.com/stanleykosi/veridian/internal/session"
	"github.com/stanleykosi/veridian/internal/state"
)

const (
	EventTypeAccountRegistered = "AccountRegistered"
	EventTypeResultPartial     = "ResultPartial"
)

var actionTxTypes = map[string]session.Action{
	codec.TypeDeal:       session.ActionDeal,
	codec.TypeHit:        session.ActionHit,
	codec.TypeStand:      session.ActionStand,
	codec.TypeDoubleDown: session.ActionDoubleDown,
	codec.TypeDealerPlay: session.ActionDealerPlay,
	codec.TypeResolve:    session.ActionResolve,
}

var unsignedTxTypes = map[string]bool{
	codec.TypeTick: true,
}

var knownTxTypes = func() map[string]bool {
	m := map[string]bool{
		codec.TypeRegisterAccount: true,
		codec.TypeNewGame:         true,
		codec.TypeTick:            true,
		codec.TypeClose:           true,
		codec.TypeCallback:        true,
		codec.TypeCallbackLarge:   true,
	}
	for typ := range actionTxTypes {
		m[typ] = true
	}
	return m
}()

// txContext is what a handler knows about the tx being executed.
type txContext struct {
	cache  *state.Cache
	env    codec.TxEnvelope
	height int64
	now    int64
	ref    computation.TxRef
}

func (tc txContext) sessionEnv(queueID uint64) session.Env {
	return session.Env{Height: tc.height, Time: tc.now, TxHash: tc.ref, QueueID: queueID}
}

// deliverTx runs one tx on its own cache. Nothing it staged survives an
// error.
func (a *App) deliverTx(block *state.Cache, txBytes []byte, height int64, now int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errResult(errorsmod.Wrap(ErrBadTx, err.Error()))
	}
	tc := txContext{cache: block.Cache(), env: env, height: height, now: now, ref: txRef(txBytes)}

	events, err := a.route(tc)
	if err != nil {
		tc.cache.Discard()
		a.logger.Debug("tx rejected", "type", env.Type, "height", height, "err", err)
		return errResult(err)
	}
	if err := tc.cache.Write(); err != nil {
		return errResult(err)
	}
	return okEvents(events...)
}

func (a *App) route(tc txContext) ([]session.Event, error) {
	if action, ok := actionTxTypes[tc.env.Type]; ok {
		return a.handleAction(tc, action)
	}
	switch tc.env.Type {
	case codec.TypeRegisterAccount:
		return a.handleRegisterAccount(tc)
	case codec.TypeNewGame:
		return a.handleNewGame(tc)
	case codec.TypeTick:
		return a.handleTick(tc)
	case codec.TypeClose:
		return a.handleClose(tc)
	case codec.TypeCallback:
		return a.handleCallback(tc)
	case codec.TypeCallbackLarge:
		return a.handleCallbackLarge(tc)
	default:
		return nil, errorsmod.Wrapf(ErrUnknownTx, "%q", tc.env.Type)
	}
}

func decodeValue(env codec.TxEnvelope, v any) error {
	if err := json.Unmarshal(env.Value, v); err != nil {
		return errorsmod.Wrapf(ErrBadTx, "bad %s value: %v", env.Type, err)
	}
	return nil
}

func (a *App) requireConfigured() error {
	if a.machine == nil || a.agent == nil {
		return errorsmod.Wrap(computation.ErrClusterNotSet, "chain has no cluster configured")
	}
	return nil
}

func (a *App) loadSession(c *state.Cache, id uint64) (*session.Session, error) {
	s, ok, err := c.Session(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorsmod.Wrapf(ErrSessionNotFound, "session %d", id)
	}
	return s, nil
}

func pendingQueue(s *session.Session) uint64 {
	if s.Pending == nil {
		return 0
	}
	return s.Pending.QueueID
}

func (a *App) handleRegisterAccount(tc txContext) ([]session.Event, error) {
	var msg codec.AuthRegisterAccountTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := requireRegisterAccountAuth(tc.cache, tc.env, msg); err != nil {
		return nil, err
	}
	tc.cache.SetAccountKey(msg.Account, msg.PubKey)
	return []session.Event{{Type: EventTypeAccountRegistered, Attrs: map[string]string{"account": msg.Account}}}, nil
}

func (a *App) handleNewGame(tc txContext) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.NewGameTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := requireAccountAuth(tc.cache, tc.env, msg.Player); err != nil {
		return nil, err
	}
	id, err := tc.cache.NextSessionID()
	if err != nil {
		return nil, err
	}
	s, err := session.New(id, msg.Player, msg.PubKey, msg.Bet, msg.ClientNonce, tc.height)
	if err != nil {
		return nil, err
	}
	queue, err := tc.cache.NextQueueID()
	if err != nil {
		return nil, err
	}
	req, err := a.machine.Begin(s, session.ActionDeal, tc.sessionEnv(queue))
	if err != nil {
		return nil, err
	}
	if err := tc.cache.SetSession(s, 0); err != nil {
		return nil, err
	}
	return []session.Event{
		{Type: session.EventTypeSessionCreated, Attrs: map[string]string{
			"sessionId": strconv.FormatUint(id, 10),
			"player":    msg.Player,
			"bet":       strconv.FormatUint(msg.Bet, 10),
		}},
		session.QueuedEvent(req),
	}, nil
}

func (a *App) handleAction(tc txContext, action session.Action) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.ActionTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := requireAccountAuth(tc.cache, tc.env, msg.Player); err != nil {
		return nil, err
	}
	s, err := a.loadSession(tc.cache, msg.SessionID)
	if err != nil {
		return nil, err
	}
	if s.Player != msg.Player {
		return nil, errorsmod.Wrapf(ErrUnauthorized, "session %d belongs to %q", s.ID, s.Player)
	}
	prev := pendingQueue(s)
	queue, err := tc.cache.NextQueueID()
	if err != nil {
		return nil, err
	}
	req, err := a.machine.Begin(s, action, tc.sessionEnv(queue))
	if err != nil {
		return nil, err
	}
	if err := tc.cache.SetSession(s, prev); err != nil {
		return nil, err
	}
	return []session.Event{session.QueuedEvent(req)}, nil
}

func (a *App) handleTick(tc txContext) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.TickTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	s, err := a.loadSession(tc.cache, msg.SessionID)
	if err != nil {
		return nil, err
	}
	prev := pendingQueue(s)
	queue, err := tc.cache.NextQueueID()
	if err != nil {
		return nil, err
	}
	_, events, err := a.machine.Tick(s, tc.sessionEnv(queue))
	if err != nil {
		return nil, err
	}
	if err := tc.cache.SetSession(s, prev); err != nil {
		return nil, err
	}
	return events, nil
}

func (a *App) handleClose(tc txContext) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.CloseTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := requireAccountAuth(tc.cache, tc.env, msg.Player); err != nil {
		return nil, err
	}
	s, err := a.loadSession(tc.cache, msg.SessionID)
	if err != nil {
		return nil, err
	}
	if s.Player != msg.Player {
		return nil, errorsmod.Wrapf(ErrUnauthorized, "session %d belongs to %q", s.ID, s.Player)
	}
	ev, err := a.machine.Close(s, tc.sessionEnv(0))
	if err != nil {
		return nil, err
	}
	if err := tc.cache.ArchiveSession(s); err != nil {
		return nil, err
	}
	return []session.Event{ev}, nil
}

func (a *App) handleCallback(tc txContext) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.CallbackTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := a.requireNodeAuth(tc.cache, tc.env, msg.NodeID); err != nil {
		return nil, err
	}
	s, err := a.loadSession(tc.cache, msg.SessionID)
	if err != nil {
		return nil, err
	}
	d, err := a.agent.AcceptInline(s, delivery.Callback{
		Node:       msg.NodeID,
		RequestKey: msg.RequestKey,
		Outcome:    msg.Outcome,
		Total:      msg.TotalLen,
	})
	if err != nil {
		return nil, err
	}
	if d.Partial != nil {
		s.Pending.Partial = d.Partial
		s.UpdatedHeight = tc.height
		if err := tc.cache.SetSession(s, pendingQueue(s)); err != nil {
			return nil, err
		}
		return []session.Event{{Type: EventTypeResultPartial, Attrs: map[string]string{
			"sessionId": strconv.FormatUint(s.ID, 10),
			"key":       d.Key,
			"node":      msg.NodeID,
			"received":  strconv.Itoa(len(d.Partial.Head)),
			"total":     strconv.FormatUint(uint64(d.Partial.Total), 10),
		}}}, nil
	}
	return a.complete(tc, s, d)
}

func (a *App) handleCallbackLarge(tc txContext) ([]session.Event, error) {
	if err := a.requireConfigured(); err != nil {
		return nil, err
	}
	var msg codec.CallbackLargeTx
	if err := decodeValue(tc.env, &msg); err != nil {
		return nil, err
	}
	if err := a.requireNodeAuth(tc.cache, tc.env, msg.NodeID); err != nil {
		return nil, err
	}
	s, err := a.loadSession(tc.cache, msg.SessionID)
	if err != nil {
		return nil, err
	}
	d, err := a.agent.AcceptSideChannel(s, msg.NodeID, msg.Payload)
	if err != nil {
		return nil, err
	}
	if d.Key != msg.RequestKey {
		return nil, errorsmod.Wrapf(delivery.ErrReferenceMismatch, "payload completes %s, tx names %s", d.Key, msg.RequestKey)
	}
	return a.complete(tc, s, d)
}

// complete hands an accepted delivery to the session. A rejected outcome
// fails the tx; a computation failure is a successful delivery.
func (a *App) complete(tc txContext, s *session.Session, d delivery.Delivery) ([]session.Event, error) {
	prev := pendingQueue(s)
	res, err := a.machine.Complete(s, d.Key, d.Outcome, tc.sessionEnv(0))
	if err != nil {
		return nil, err
	}
	if res.Kind == session.ResultDiscarded {
		return res.Events, nil
	}
	if err := tc.cache.SetSession(s, prev); err != nil {
		return nil, err
	}
	return res.Events, nil
}
