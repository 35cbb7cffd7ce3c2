package codec

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stanleykosi/veridian/internal/computation"
)

// Tx types.
const (
	TypeRegisterAccount = "auth/register_account"

	TypeNewGame    = "blackjack/new_game"
	TypeDeal       = "blackjack/deal"
	TypeHit        = "blackjack/hit"
	TypeStand      = "blackjack/stand"
	TypeDoubleDown = "blackjack/double_down"
	TypeDealerPlay = "blackjack/dealer_play"
	TypeResolve    = "blackjack/resolve"

	TypeTick  = "session/tick"
	TypeClose = "session/close"

	TypeCallback      = "computation/callback"
	TypeCallbackLarge = "computation/callback_large"
)

// TxEnvelope is the transaction container. CometBFT txs are opaque bytes;
// these are JSON.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Nonce must strictly increase per signer. Sig is ed25519 over SignBytes.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

const signDomain = "veridian/tx/v1"

// SignBytes = DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
func SignBytes(typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(signDomain)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, signDomain...)
	out = append(out, 0)
	out = append(out, typ...)
	out = append(out, 0)
	out = append(out, nonce...)
	out = append(out, 0)
	out = append(out, signer...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// NewSignedTx marshals value and signs the envelope as signer.
func NewSignedTx(typ string, value any, nonce uint64, signer string, key ed25519.PrivateKey) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s value: %w", typ, err)
	}
	n := strconv.FormatUint(nonce, 10)
	env := TxEnvelope{
		Type:   typ,
		Value:  raw,
		Nonce:  n,
		Signer: signer,
		Sig:    ed25519.Sign(key, SignBytes(typ, raw, n, signer)),
	}
	return json.Marshal(env)
}

// NewUnsignedTx builds an envelope for txs anyone may submit.
func NewUnsignedTx(typ string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s value: %w", typ, err)
	}
	return json.Marshal(TxEnvelope{Type: typ, Value: raw})
}

// ---- Auth ----

type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Blackjack ----

type NewGameTx struct {
	Player      string `json:"player"`
	PubKey      []byte `json:"pubKey"` // ristretto255, shared-domain key
	Bet         uint64 `json:"bet"`
	ClientNonce uint64 `json:"clientNonce"`
}

// ActionTx drives hit, stand, double down, dealer play and resolve.
type ActionTx struct {
	Player    string `json:"player"`
	SessionID uint64 `json:"sessionId"`
}

// ---- Session ----

type TickTx struct {
	SessionID uint64 `json:"sessionId"`
}

type CloseTx struct {
	Player    string `json:"player"`
	SessionID uint64 `json:"sessionId"`
}

// ---- Computation ----

// CallbackTx delivers an outcome. When TotalLen is non-zero the result was
// split and Outcome.Payload holds the head.
type CallbackTx struct {
	NodeID     string               `json:"nodeId"`
	SessionID  uint64               `json:"sessionId"`
	RequestKey string               `json:"requestKey"`
	Outcome    computation.Envelope `json:"outcome"`
	TotalLen   uint32               `json:"totalLen,omitempty"`
}

// CallbackLargeTx carries the binary side-channel payload for a split result.
type CallbackLargeTx struct {
	NodeID     string `json:"nodeId"`
	SessionID  uint64 `json:"sessionId"`
	RequestKey string `json:"requestKey"`
	Payload    []byte `json:"payload"`
}
