package app

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"

	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/codec"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/delivery"
	"github.com/stanleykosi/veridian/internal/mpc"
	"github.com/stanleykosi/veridian/internal/seal"
	"github.com/stanleykosi/veridian/internal/session"
	"github.com/stanleykosi/veridian/internal/state"
)

func testEd25519Key(name string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := sha256.Sum256([]byte("veridian-test|" + name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

type testChain struct {
	t       *testing.T
	app     *App
	cluster *mpc.Cluster
	player  seal.KeyPair
	height  int64
	start   int64
	nonces  map[string]uint64
}

func identityDeck([]byte) [cards.DeckSize]cards.Card { return cards.IdentityDeck() }

func newTestCluster(t *testing.T) *mpc.Cluster {
	t.Helper()
	mxe, err := seal.KeyFromSeed([]byte("test-mxe"))
	require.NoError(t, err)
	_, nodeKey := testEd25519Key("node-0")
	c, err := mpc.New(mpc.Config{ClusterID: "local", MXE: mxe, NodeID: "node-0", NodeKey: nodeKey, Shuffle: identityDeck}, log.NewNopLogger())
	require.NoError(t, err)
	return c
}

func genesisBytes(t *testing.T, c *mpc.Cluster, mutate func(*Genesis)) []byte {
	t.Helper()
	alicePub, _ := testEd25519Key("alice")
	g := Genesis{
		Params:   state.Params{Cluster: c.Info(), ActionTimeoutSecs: 30},
		Accounts: []GenesisAccount{{Account: "alice", PubKey: alicePub}},
	}
	if mutate != nil {
		mutate(&g)
	}
	b, err := json.Marshal(g)
	require.NoError(t, err)
	return b
}

func newTestChain(t *testing.T, mutate func(*Genesis)) *testChain {
	t.Helper()
	a, err := New(t.TempDir(), log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	c := newTestCluster(t)
	_, err = a.InitChain(context.Background(), &abci.InitChainRequest{ChainId: "veridian-test", AppStateBytes: genesisBytes(t, c, mutate)})
	require.NoError(t, err)

	player, err := seal.KeyFromSeed([]byte("alice-table-key"))
	require.NoError(t, err)
	return &testChain{t: t, app: a, cluster: c, player: player, start: 1_000, nonces: map[string]uint64{}}
}

func (c *testChain) signed(typ string, value any, signer string) []byte {
	c.t.Helper()
	_, priv := testEd25519Key(signer)
	c.nonces[signer]++
	b, err := codec.NewSignedTx(typ, value, c.nonces[signer], signer, priv)
	require.NoError(c.t, err)
	return b
}

func (c *testChain) unsigned(typ string, value any) []byte {
	c.t.Helper()
	b, err := codec.NewUnsignedTx(typ, value)
	require.NoError(c.t, err)
	return b
}

func (c *testChain) now() time.Time { return time.Unix(c.start+c.height, 0) }

// block finalizes and commits txs as the next height.
func (c *testChain) block(txs ...[]byte) []*abci.ExecTxResult {
	c.t.Helper()
	c.height++
	res, err := c.app.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{Height: c.height, Time: c.now(), Txs: txs})
	require.NoError(c.t, err)
	_, err = c.app.Commit(context.Background(), &abci.CommitRequest{})
	require.NoError(c.t, err)
	require.Equal(c.t, res.AppHash, c.app.st.AppHash())
	return res.TxResults
}

func (c *testChain) mustBlock(txs ...[]byte) []*abci.ExecTxResult {
	c.t.Helper()
	res := c.block(txs...)
	for i, r := range res {
		require.Zerof(c.t, r.Code, "tx %d: codespace=%s log=%s", i, r.Codespace, r.Log)
	}
	return res
}

func (c *testChain) query(path string, v any) *abci.QueryResponse {
	c.t.Helper()
	res, err := c.app.Query(context.Background(), &abci.QueryRequest{Path: path})
	require.NoError(c.t, err)
	if v != nil && res.Code == 0 {
		require.NoError(c.t, json.Unmarshal(res.Value, v))
	}
	return res
}

func (c *testChain) session(id uint64) *session.Session {
	c.t.Helper()
	var s session.Session
	res := c.query(SessionPath(id), &s)
	require.Zero(c.t, res.Code, res.Log)
	return &s
}

func (c *testChain) pending() []*computation.Request {
	c.t.Helper()
	var reqs []*computation.Request
	res := c.query(QueryPending, &reqs)
	require.Zero(c.t, res.Code, res.Log)
	return reqs
}

// queryRefs resolves by-reference arguments through the deck query.
type queryRefs struct{ c *testChain }

func (q queryRefs) ResolveRef(_ context.Context, ref computation.Ref) ([]computation.Ciphertext, error) {
	var deck computation.Encrypted
	res := q.c.query("/"+ref.Account, &deck)
	if res.Code != 0 {
		return nil, fmt.Errorf("query %s: %s", ref.Account, res.Log)
	}
	end := ref.Offset + ref.Length
	if int(end) > len(deck.Ciphertexts) {
		return nil, fmt.Errorf("ref out of range")
	}
	return deck.Ciphertexts[ref.Offset:end], nil
}

func (c *testChain) callback(req *computation.Request, out computation.Outcome) []byte {
	return c.signed(codec.TypeCallback, codec.CallbackTx{
		NodeID:     c.cluster.NodeID(),
		SessionID:  req.SessionID,
		RequestKey: req.Key,
		Outcome:    computation.NewEnvelope(out),
	}, c.cluster.NodeID())
}

// relay executes every pending request and delivers the outcomes in one
// block.
func (c *testChain) relay() []*abci.ExecTxResult {
	c.t.Helper()
	var txs [][]byte
	for _, req := range c.pending() {
		out, err := c.cluster.Execute(context.Background(), req, queryRefs{c})
		require.NoError(c.t, err)
		txs = append(txs, c.callback(req, out))
	}
	require.NotEmpty(c.t, txs, "nothing pending")
	return c.mustBlock(txs...)
}

func (c *testChain) newGame(bet uint64) uint64 {
	c.t.Helper()
	res := c.mustBlock(c.signed(codec.TypeNewGame, codec.NewGameTx{
		Player: "alice", PubKey: c.player.PublicBytes(), Bet: bet, ClientNonce: 0,
	}, "alice"))
	ev := findEvent(res[0].Events, session.EventTypeSessionCreated)
	require.NotNil(c.t, ev)
	var id uint64
	_, err := fmt.Sscan(attr(ev, "sessionId"), &id)
	require.NoError(c.t, err)
	return id
}

func (c *testChain) act(typ string, id uint64) *abci.ExecTxResult {
	c.t.Helper()
	return c.block(c.signed(typ, codec.ActionTx{Player: "alice", SessionID: id}, "alice"))[0]
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func requireCode(t *testing.T, res *abci.ExecTxResult, want *errorsmod.Error) {
	t.Helper()
	require.Equalf(t, want.Codespace(), res.Codespace, "log=%s", res.Log)
	require.Equalf(t, want.ABCICode(), res.Code, "log=%s", res.Log)
}

func TestInitChainRequiresCluster(t *testing.T) {
	a, err := NewWithStore(state.NewMemStore(), nil)
	require.NoError(t, err)
	_, err = a.InitChain(context.Background(), &abci.InitChainRequest{AppStateBytes: []byte(`{}`)})
	require.ErrorIs(t, err, computation.ErrClusterNotSet)

	// Without genesis, game txs are refused.
	_, priv := testEd25519Key("alice")
	tx, err := codec.NewSignedTx(codec.TypeNewGame, codec.NewGameTx{Player: "alice", PubKey: make([]byte, 32), Bet: 1}, 1, "alice", priv)
	require.NoError(t, err)
	res, err := a.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{Height: 1, Time: time.Unix(1, 0), Txs: [][]byte{tx}})
	require.NoError(t, err)
	requireCode(t, res.TxResults[0], computation.ErrClusterNotSet)
}

func TestGenesisDefaultsAndReload(t *testing.T) {
	home := t.TempDir()
	a, err := New(home, nil)
	require.NoError(t, err)
	c := newTestCluster(t)
	_, err = a.InitChain(context.Background(), &abci.InitChainRequest{AppStateBytes: genesisBytes(t, c, func(g *Genesis) { g.ActionTimeoutSecs = 0 })})
	require.NoError(t, err)
	_, err = a.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{Height: 1, Time: time.Unix(1, 0)})
	require.NoError(t, err)
	_, err = a.Commit(context.Background(), &abci.CommitRequest{})
	require.NoError(t, err)
	hash := a.st.AppHash()
	require.NoError(t, a.Close())

	a, err = New(home, nil)
	require.NoError(t, err)
	defer a.Close()
	info, err := a.Info(context.Background(), &abci.InfoRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(1), info.LastBlockHeight)
	require.Equal(t, hash, info.LastBlockAppHash)
	require.NotNil(t, a.machine)

	var p state.Params
	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: QueryCluster})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(res.Value, &p))
	require.Equal(t, session.DefaultMaxDealerDraws, p.MaxDealerDraws)
	require.Equal(t, session.DefaultActionTimeoutSecs, p.ActionTimeoutSecs)
	require.Equal(t, uint32(delivery.DefaultInlineLimit), p.InlineResultLimit)
}

func TestFullGameIdentityDeck(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)

	s := c.session(id)
	require.Equal(t, session.PhaseInitial, s.Phase)
	require.NotNil(t, s.Pending)
	require.Equal(t, computation.CircuitShuffleAndDeal, s.Pending.Circuit)

	res := c.relay()
	dealt := findEvent(res[0].Events, session.EventTypeCardsDealt)
	require.NotNil(t, dealt)
	require.Equal(t, "2c", attr(dealt, "dealerFaceUp"))
	for _, ev := range res[0].Events {
		for _, a := range ev.Attributes {
			require.NotContains(t, a.Key, "ciphertext")
		}
	}

	s = c.session(id)
	require.Equal(t, session.PhasePlayerTurn, s.Phase)
	hand, err := mpc.OpenPlayerHand(c.player.Secret, c.mxePub(), s.PlayerHand, s.PlayerHandSize)
	require.NoError(t, err)
	require.Equal(t, []cards.Card{0, 2}, hand)

	require.Zero(t, c.act(codec.TypeStand, id).Code)
	res = c.relay()
	require.NotNil(t, findEvent(res[0].Events, session.EventTypePlayerStood))

	require.Zero(t, c.act(codec.TypeDealerPlay, id).Code)
	res = c.relay()
	played := findEvent(res[0].Events, session.EventTypeDealerPlayed)
	require.Equal(t, "4", attr(played, "dealerHandSize"))
	s = c.session(id)
	dealer, err := mpc.OpenDealerDisplay(c.player.Secret, c.mxePub(), s.DealerDisplay, s.DealerHandSize)
	require.NoError(t, err)
	require.Equal(t, []cards.Card{1, 3, 4, 5}, dealer)

	require.Zero(t, c.act(codec.TypeResolve, id).Code)
	res = c.relay()
	resolved := findEvent(res[0].Events, session.EventTypeGameResolved)
	require.Equal(t, "dealer", attr(resolved, "winner"))
	require.Equal(t, "14", attr(resolved, "playerValue"))
	require.Equal(t, "17", attr(resolved, "dealerValue"))
	require.Equal(t, "0", attr(resolved, "payout"))
	require.Empty(t, c.pending())

	closed := c.mustBlock(c.signed(codec.TypeClose, codec.CloseTx{Player: "alice", SessionID: id}, "alice"))
	require.NotNil(t, findEvent(closed[0].Events, session.EventTypeSessionClosed))
	s = c.session(id)
	require.True(t, s.Closed)
	requireCode(t, c.act(codec.TypeHit, id), ErrSessionNotFound)
}

func (c *testChain) mxePub() seal.Point {
	c.t.Helper()
	var p state.Params
	c.query(QueryCluster, &p)
	pt, err := seal.PointFromBytesCanonical(p.Cluster.MXEPubKey)
	require.NoError(c.t, err)
	return pt
}

func TestGuardViolationsAreRejected(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)

	requireCode(t, c.act(codec.TypeHit, id), session.ErrRequestInFlight)
	c.relay()

	requireCode(t, c.act(codec.TypeDealerPlay, id), session.ErrWrongPhase)
	require.Zero(t, c.act(codec.TypeStand, id).Code)
	requireCode(t, c.act(codec.TypeStand, id), session.ErrRequestInFlight)
	c.relay()
	requireCode(t, c.act(codec.TypeHit, id), session.ErrWrongPhase)

	// Rejected txs leave the session as it was.
	s := c.session(id)
	require.Equal(t, session.PhaseDealerTurn, s.Phase)
	require.Nil(t, s.Pending)
}

func TestComputationFailureIsRetryable(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	req := c.pending()[0]

	res := c.mustBlock(c.callback(req, computation.Failure{Reason: "node offline"}))
	failed := findEvent(res[0].Events, session.EventTypeComputationFailed)
	require.NotNil(t, failed)
	require.Equal(t, "true", attr(failed, "retryable"))

	s := c.session(id)
	require.Equal(t, session.PhaseInitial, s.Phase)
	require.Nil(t, s.Pending)
	require.Contains(t, s.LastFailure, "node offline")
	require.Empty(t, c.pending())

	// The late success for the old key is discarded.
	out, err := c.cluster.Execute(context.Background(), req, queryRefs{c})
	require.NoError(t, err)
	res = c.mustBlock(c.callback(req, out))
	require.NotNil(t, findEvent(res[0].Events, session.EventTypeOutcomeDiscarded))
	require.Equal(t, session.PhaseInitial, c.session(id).Phase)
}

func TestNonceReuseOutcomeFailsTx(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	req := c.pending()[0]

	bad := computation.DealResult{
		Deck:         computation.Encrypted{Nonce: 0, Ciphertexts: make([]computation.Ciphertext, 3)},
		DealerHand:   computation.Encrypted{Nonce: 1, Ciphertexts: make([]computation.Ciphertext, 1)},
		PlayerHand:   computation.Encrypted{Nonce: 1, Ciphertexts: make([]computation.Ciphertext, 1)},
		DealerFaceUp: 1,
	}
	res := c.block(c.callback(req, computation.Success{Fields: bad.Fields()}))
	requireCode(t, res[0], session.ErrNonceReuse)

	s := c.session(id)
	require.NotNil(t, s.Pending)
	require.Equal(t, session.PhaseInitial, s.Phase)
}

func TestAuthAndReplay(t *testing.T) {
	c := newTestChain(t, nil)

	// bob is unregistered.
	res := c.block(c.signed(codec.TypeNewGame, codec.NewGameTx{Player: "bob", PubKey: c.player.PublicBytes(), Bet: 1}, "bob"))
	requireCode(t, res[0], ErrUnauthorized)

	bobPub, _ := testEd25519Key("bob")
	reg := c.signed(codec.TypeRegisterAccount, codec.AuthRegisterAccountTx{Account: "bob", PubKey: bobPub}, "bob")
	res = c.mustBlock(reg)
	require.NotNil(t, findEvent(res[0].Events, EventTypeAccountRegistered))

	// Same bytes again.
	res = c.block(reg)
	requireCode(t, res[0], ErrReplay)

	var acct AccountView
	c.query(AccountPath("bob"), &acct)
	require.Equal(t, []byte(bobPub), acct.PubKey)
	require.Equal(t, c.nonces["bob"], acct.Nonce)

	// Someone else cannot claim alice's name.
	malloryPub, malloryPriv := testEd25519Key("mallory")
	tx, err := codec.NewSignedTx(codec.TypeRegisterAccount, codec.AuthRegisterAccountTx{Account: "alice", PubKey: malloryPub}, 1, "alice", malloryPriv)
	require.NoError(t, err)
	requireCode(t, c.block(tx)[0], ErrUnauthorized)

	// bob cannot act on alice's session.
	id := c.newGame(5)
	c.relay()
	res = c.block(c.signed(codec.TypeHit, codec.ActionTx{Player: "bob", SessionID: id}, "bob"))
	requireCode(t, res[0], ErrUnauthorized)
}

func TestAccountsCannotReachNodeNonces(t *testing.T) {
	c := newTestChain(t, nil)
	nodePub, nodePriv := testEd25519Key("node-0")

	// A slash would let an account name shadow a node namespace.
	tx, err := codec.NewSignedTx(codec.TypeRegisterAccount, codec.AuthRegisterAccountTx{Account: "node/node-0", PubKey: nodePub}, math.MaxUint64, "node/node-0", nodePriv)
	require.NoError(t, err)
	requireCode(t, c.block(tx)[0], ErrBadTx)

	// An account sharing the node's id burns only its own counter.
	tx, err = codec.NewSignedTx(codec.TypeRegisterAccount, codec.AuthRegisterAccountTx{Account: "node-0", PubKey: nodePub}, math.MaxUint64, "node-0", nodePriv)
	require.NoError(t, err)
	c.mustBlock(tx)

	id := c.newGame(10)
	c.relay()
	require.Equal(t, session.PhasePlayerTurn, c.session(id).Phase)

	var node NodeView
	require.Zero(t, c.query(NodePath("node-0"), &node).Code)
	require.Equal(t, c.nonces["node-0"], node.Nonce)
	var acct AccountView
	c.query(AccountPath("node-0"), &acct)
	require.Equal(t, uint64(math.MaxUint64), acct.Nonce)

	_, err = ParseGenesis(genesisBytes(t, c.cluster, func(g *Genesis) {
		g.Accounts = append(g.Accounts, GenesisAccount{Account: "node/node-0", PubKey: nodePub})
	}))
	require.ErrorIs(t, err, ErrGenesis)
}

func TestCallbackFromUnknownNodeRejected(t *testing.T) {
	c := newTestChain(t, nil)
	c.newGame(10)
	req := c.pending()[0]
	out, err := c.cluster.Execute(context.Background(), req, queryRefs{c})
	require.NoError(t, err)

	tx := c.signed(codec.TypeCallback, codec.CallbackTx{
		NodeID: "mallory", SessionID: req.SessionID, RequestKey: req.Key, Outcome: computation.NewEnvelope(out),
	}, "mallory")
	requireCode(t, c.block(tx)[0], ErrUnauthorized)
	require.Len(t, c.pending(), 1)
}

func TestCheckTx(t *testing.T) {
	c := newTestChain(t, nil)
	check := func(tx []byte) *abci.CheckTxResponse {
		res, err := c.app.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: tx})
		require.NoError(t, err)
		return res
	}
	require.Zero(t, check(c.signed(codec.TypeHit, codec.ActionTx{Player: "alice", SessionID: 1}, "alice")).Code)
	require.Zero(t, check(c.unsigned(codec.TypeTick, codec.TickTx{SessionID: 1})).Code)
	require.Equal(t, ErrUnauthorized.ABCICode(), check(c.unsigned(codec.TypeHit, codec.ActionTx{Player: "alice", SessionID: 1})).Code)
	require.Equal(t, ErrUnknownTx.ABCICode(), check(c.unsigned("bank/mint", map[string]any{})).Code)
	require.Equal(t, ErrBadTx.ABCICode(), check([]byte("{")).Code)
}

func TestQueries(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	c.relay()

	var deck computation.Encrypted
	res := c.query(DeckPath(id), &deck)
	require.Zero(t, res.Code)
	require.Len(t, deck.Ciphertexts, computation.DeckCiphertexts)
	require.Equal(t, c.height, res.Height)

	require.Equal(t, ErrSessionNotFound.ABCICode(), c.query(SessionPath(99), nil).Code)
	require.Equal(t, ErrBadTx.ABCICode(), c.query("/session/x", nil).Code)
	require.Equal(t, ErrBadTx.ABCICode(), c.query("/nope", nil).Code)
}

// splitDeal executes the pending deal and splits its result at limit bytes.
func (c *testChain) splitDeal(limit int) (*computation.Request, []byte, []byte, uint32) {
	c.t.Helper()
	req := c.pending()[0]
	out, err := c.cluster.Execute(context.Background(), req, queryRefs{c})
	require.NoError(c.t, err)
	success, ok := out.(computation.Success)
	require.True(c.t, ok)
	head, tail, total, err := delivery.Split(success.Fields, limit)
	require.NoError(c.t, err)
	require.NotEmpty(c.t, tail)
	return req, head, tail, total
}

func (c *testChain) splitCallback(req *computation.Request, head []byte, total uint32) []byte {
	return c.signed(codec.TypeCallback, codec.CallbackTx{
		NodeID:     c.cluster.NodeID(),
		SessionID:  req.SessionID,
		RequestKey: req.Key,
		Outcome:    computation.Envelope{Status: computation.StatusSuccess, Payload: head},
		TotalLen:   total,
	}, c.cluster.NodeID())
}

func (c *testChain) sideChannel(req *computation.Request, payload []byte) []byte {
	return c.signed(codec.TypeCallbackLarge, codec.CallbackLargeTx{
		NodeID:     c.cluster.NodeID(),
		SessionID:  req.SessionID,
		RequestKey: req.Key,
		Payload:    payload,
	}, c.cluster.NodeID())
}

func TestSplitResultOverSideChannel(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	req, head, tail, total := c.splitDeal(64)

	res := c.mustBlock(c.splitCallback(req, head, total))
	partial := findEvent(res[0].Events, EventTypeResultPartial)
	require.Equal(t, "64", attr(partial, "received"))

	s := c.session(id)
	require.Equal(t, session.PhaseInitial, s.Phase)
	require.NotNil(t, s.Pending.Partial)
	require.Equal(t, total, s.Pending.Partial.Total)

	raw, err := c.cluster.SignSideChannel(req, tail).MarshalBinary()
	require.NoError(t, err)
	res = c.mustBlock(c.sideChannel(req, raw))
	require.NotNil(t, findEvent(res[0].Events, session.EventTypeCardsDealt))

	s = c.session(id)
	require.Equal(t, session.PhasePlayerTurn, s.Phase)
	require.Nil(t, s.Pending)
}

func TestTamperedSideChannelLeavesStateUntouched(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	req, head, tail, total := c.splitDeal(64)
	c.mustBlock(c.splitCallback(req, head, total))
	before := c.session(id)

	p := c.cluster.SignSideChannel(req, tail)
	p.Data = append([]byte(nil), p.Data...)
	p.Data[0] ^= 0xff
	raw, err := p.MarshalBinary()
	require.NoError(t, err)
	res := c.block(c.sideChannel(req, raw))
	requireCode(t, res[0], delivery.ErrUnauthenticated)

	// A payload bound to another tx is refused as well.
	other := *req
	other.OriginTx = computation.TxRef{1}
	raw, err = c.cluster.SignSideChannel(&other, tail).MarshalBinary()
	require.NoError(t, err)
	res = c.block(c.sideChannel(req, raw))
	requireCode(t, res[0], delivery.ErrReferenceMismatch)

	require.Equal(t, before, c.session(id))
}

func TestTickForcesStandAfterDeadline(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	c.relay()

	tick := func() *abci.ExecTxResult {
		return c.block(c.unsigned(codec.TypeTick, codec.TickTx{SessionID: id}))[0]
	}
	requireCode(t, tick(), session.ErrTurnNotExpired)

	c.start += 60
	res := tick()
	require.Zero(t, res.Code, res.Log)
	require.NotNil(t, findEvent(res.Events, session.EventTypeTurnTimedOut))

	s := c.session(id)
	require.Equal(t, computation.CircuitPlayerStand, s.Pending.Circuit)
	c.relay()
	s = c.session(id)
	require.Equal(t, session.PhaseDealerTurn, s.Phase)
	require.True(t, s.PlayerStood)
}

func TestTimeoutOutcomeClearsRequest(t *testing.T) {
	c := newTestChain(t, nil)
	id := c.newGame(10)
	req := c.pending()[0]

	res := c.mustBlock(c.callback(req, computation.Timeout{}))
	failed := findEvent(res[0].Events, session.EventTypeComputationFailed)
	require.Contains(t, attr(failed, "reason"), "timed out")
	require.Nil(t, c.session(id).Pending)

	// The deal is retried under a fresh key.
	retry := c.act(codec.TypeDeal, id)
	require.Zero(t, retry.Code, retry.Log)
	queued := findEvent(retry.Events, session.EventTypeComputationQueued)
	require.NotEqual(t, req.Key, attr(queued, "key"))

	c.relay()
	require.Equal(t, session.PhasePlayerTurn, c.session(id).Phase)
}
