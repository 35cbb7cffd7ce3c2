package delivery

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/session"
)

type fixture struct {
	keys    map[string]ed25519.PrivateKey
	cluster computation.Cluster
	machine *session.Machine
	agent   *Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{keys: map[string]ed25519.PrivateKey{}}
	f.cluster = computation.Cluster{ID: "local", MXEPubKey: make([]byte, 32)}
	for i, id := range []string{"node-0", "node-1"} {
		k := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{byte(i + 1)}, ed25519.SeedSize))
		f.keys[id] = k
		f.cluster.Nodes = append(f.cluster.Nodes, computation.Node{ID: id, PubKey: k.Public().(ed25519.PublicKey)})
	}
	var err error
	f.machine, err = session.NewMachine(session.Config{Cluster: f.cluster}, log.NewNopLogger())
	require.NoError(t, err)
	f.agent, err = NewAgent(f.cluster, log.NewNopLogger())
	require.NoError(t, err)
	return f
}

func blob(b byte) computation.Ciphertext {
	var c computation.Ciphertext
	for i := range c {
		c[i] = b ^ byte(i)
	}
	return c
}

func enc(nonce uint64, n int, tag byte) computation.Encrypted {
	e := computation.Encrypted{Nonce: nonce}
	for i := 0; i < n; i++ {
		e.Ciphertexts = append(e.Ciphertexts, blob(tag+byte(i)))
	}
	return e
}

func env(h int64) session.Env {
	return session.Env{Height: h, Time: 1_000 + h, QueueID: uint64(h), TxHash: sha256.Sum256([]byte{byte(h)})}
}

// pendingDeal returns a fresh session with a deal request outstanding.
func (f *fixture) pendingDeal(t *testing.T) (*session.Session, *computation.Request) {
	t.Helper()
	s, err := session.New(1, "alice", make([]byte, 32), 100, 7, 1)
	require.NoError(t, err)
	req, err := f.machine.Begin(s, session.ActionDeal, env(2))
	require.NoError(t, err)
	return s, req
}

func dealFields(s *session.Session) []computation.ResultField {
	return computation.DealResult{
		Deck:         enc(1, 3, 10),
		DealerHand:   enc(1, 1, 20),
		PlayerHand:   enc(s.ClientNonce+1, 1, 30),
		DealerFaceUp: 1,
	}.Fields()
}

func TestNewAgentRequiresCluster(t *testing.T) {
	_, err := NewAgent(computation.Cluster{}, nil)
	require.ErrorIs(t, err, computation.ErrClusterNotSet)
}

func TestAcceptInline(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)

	d, err := f.agent.AcceptInline(s, Callback{
		Node:       "node-0",
		RequestKey: req.Key,
		Outcome:    computation.NewEnvelope(computation.Success{Fields: dealFields(s)}),
	})
	require.NoError(t, err)
	require.Equal(t, req.Key, d.Key)
	require.Nil(t, d.Partial)

	res, err := f.machine.Complete(s, d.Key, d.Outcome, env(3))
	require.NoError(t, err)
	require.Equal(t, session.ResultApplied, res.Kind)
	require.Equal(t, session.PhasePlayerTurn, s.Phase)
}

func TestAcceptInlineUnknownNode(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)
	_, err := f.agent.AcceptInline(s, Callback{Node: "mallory", RequestKey: req.Key, Outcome: computation.NewEnvelope(computation.Timeout{})})
	require.ErrorIs(t, err, ErrUnknownNode)
	require.True(t, IsAuthenticityFailure(err))
}

func TestAcceptInlineStaleKeyIsDiscarded(t *testing.T) {
	f := newFixture(t)
	s, _ := f.pendingDeal(t)
	before := s.Clone()

	d, err := f.agent.AcceptInline(s, Callback{
		Node:       "node-1",
		RequestKey: computation.NewRequestKey(1, 99),
		Outcome:    computation.NewEnvelope(computation.Success{Fields: dealFields(s)}),
	})
	require.NoError(t, err)
	require.Nil(t, d.Outcome)

	res, err := f.machine.Complete(s, d.Key, d.Outcome, env(3))
	require.NoError(t, err)
	require.Equal(t, session.ResultDiscarded, res.Kind)
	require.Equal(t, before, s)
}

func TestAcceptInlineFailureEnvelope(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)
	d, err := f.agent.AcceptInline(s, Callback{Node: "node-0", RequestKey: req.Key, Outcome: computation.NewEnvelope(computation.Failure{Reason: "abort"})})
	require.NoError(t, err)
	require.Equal(t, computation.Failure{Reason: "abort"}, d.Outcome)
}

func TestSplitAndReassemble(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)
	fields := dealFields(s)

	head, tail, total, err := Split(fields, 64)
	require.NoError(t, err)
	require.Len(t, head, 64)
	require.NotEmpty(t, tail)
	require.Equal(t, uint32(len(head)+len(tail)), total)

	d, err := f.agent.AcceptInline(s, Callback{
		Node:       "node-0",
		RequestKey: req.Key,
		Outcome:    computation.Envelope{Status: computation.StatusSuccess, Payload: head},
		Total:      total,
	})
	require.NoError(t, err)
	require.Nil(t, d.Outcome)
	require.NotNil(t, d.Partial)
	s.Pending.Partial = d.Partial

	_, err = f.agent.AcceptInline(s, Callback{
		Node:       "node-0",
		RequestKey: req.Key,
		Outcome:    computation.Envelope{Status: computation.StatusSuccess, Payload: head},
		Total:      total,
	})
	require.ErrorIs(t, err, ErrPartialExists)

	p := computation.SignSideChannel(f.keys["node-0"], req.QueueID, req.CompDefID, req.OriginTx, tail)
	raw, err := p.MarshalBinary()
	require.NoError(t, err)

	d, err = f.agent.AcceptSideChannel(s, "node-0", raw)
	require.NoError(t, err)
	require.Equal(t, req.Key, d.Key)
	require.Equal(t, computation.Success{Fields: fields}, d.Outcome)

	res, err := f.machine.Complete(s, d.Key, d.Outcome, env(4))
	require.NoError(t, err)
	require.Equal(t, session.ResultApplied, res.Kind)
	require.Nil(t, s.Pending)
}

func TestSplitFits(t *testing.T) {
	fields := []computation.ResultField{computation.PlainU8(3)}
	head, tail, total, err := Split(fields, DefaultInlineLimit)
	require.NoError(t, err)
	require.Empty(t, tail)
	require.Equal(t, uint32(len(head)), total)
}

func TestSplitCallbackValidation(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)

	_, err := f.agent.AcceptInline(s, Callback{
		Node:       "node-0",
		RequestKey: req.Key,
		Outcome:    computation.NewEnvelope(computation.Failure{Reason: "x"}),
		Total:      10,
	})
	require.ErrorIs(t, err, ErrInvalidCallback)

	_, err = f.agent.AcceptInline(s, Callback{
		Node:       "node-0",
		RequestKey: req.Key,
		Outcome:    computation.Envelope{Status: computation.StatusSuccess, Payload: make([]byte, 10)},
		Total:      10,
	})
	require.ErrorIs(t, err, ErrInvalidCallback)
}

func TestSideChannelRejections(t *testing.T) {
	f := newFixture(t)
	s, req := f.pendingDeal(t)
	head, tail, total, err := Split(dealFields(s), 64)
	require.NoError(t, err)

	signed := func(key ed25519.PrivateKey, queue uint64, compDef uint32, origin computation.TxRef, data []byte) []byte {
		raw, err := computation.SignSideChannel(key, queue, compDef, origin, data).MarshalBinary()
		require.NoError(t, err)
		return raw
	}
	good := signed(f.keys["node-0"], req.QueueID, req.CompDefID, req.OriginTx, tail)

	// No head stored yet.
	_, err = f.agent.AcceptSideChannel(s, "node-0", good)
	require.ErrorIs(t, err, ErrNoPartial)

	s.Pending.Partial = &computation.Partial{Node: "node-0", Head: head, Total: total}
	before := s.Clone()

	stranger := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
	cases := []struct {
		name string
		node string
		raw  []byte
		err  error
	}{
		{"unknown signer", "", signed(stranger, req.QueueID, req.CompDefID, req.OriginTx, tail), ErrUnauthenticated},
		{"signer differs from sender", "node-1", good, ErrUnauthenticated},
		{"wrong comp def", "node-0", signed(f.keys["node-0"], req.QueueID, req.CompDefID+1, req.OriginTx, tail), ErrReferenceMismatch},
		{"wrong queue id", "node-0", signed(f.keys["node-0"], req.QueueID+1, req.CompDefID, req.OriginTx, tail), ErrReferenceMismatch},
		{"wrong origin", "node-0", signed(f.keys["node-0"], req.QueueID, req.CompDefID, computation.TxRef{1}, tail), ErrReferenceMismatch},
		{"short data", "node-0", signed(f.keys["node-0"], req.QueueID, req.CompDefID, req.OriginTx, tail[:len(tail)-1]), ErrLengthMismatch},
		{"truncated payload", "node-0", good[:computation.SideChannelHeaderSize-1], computation.ErrMalformedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.agent.AcceptSideChannel(s, tc.node, tc.raw)
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, before, s)
		})
	}

	t.Run("tampered data", func(t *testing.T) {
		raw := bytes.Clone(good)
		raw[len(raw)-1] ^= 0xFF
		_, err := f.agent.AcceptSideChannel(s, "node-0", raw)
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.True(t, IsAuthenticityFailure(err))
		require.Equal(t, before, s)
	})
}
