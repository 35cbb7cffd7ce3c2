package computation

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
)

var requestKeySpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("veridian/computation/request"))

// NewRequestKey derives the key for the seq-th request of a session. Keys are
// deterministic so every replica of the ledger agrees on them.
func NewRequestKey(sessionID uint64, seq uint64) string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], sessionID)
	binary.BigEndian.PutUint64(b[8:], seq)
	return uuid.NewSHA1(requestKeySpace, b[:]).String()
}

type ArgKind string

const (
	ArgU8         ArgKind = "u8"
	ArgU64        ArgKind = "u64"
	ArgPubKey     ArgKind = "pubkey"
	ArgNonce      ArgKind = "nonce"
	ArgCiphertext ArgKind = "ciphertext"
	ArgRef        ArgKind = "ref"
)

// Ref points the cluster at live data it must fetch itself. Offset and Length
// select ciphertexts of the referenced value.
type Ref struct {
	Account string `json:"account"`
	Offset  uint32 `json:"offset"`
	Length  uint32 `json:"length"`
}

// Argument is one positional circuit input, passed by value or by reference.
type Argument struct {
	Kind        ArgKind      `json:"kind"`
	Value       uint64       `json:"value,omitempty"`
	Bytes       []byte       `json:"bytes,omitempty"`
	Ciphertexts []Ciphertext `json:"ciphertexts,omitempty"`
	Ref         *Ref         `json:"ref,omitempty"`
}

func U8(v uint8) Argument { return Argument{Kind: ArgU8, Value: uint64(v)} }
func U64(v uint64) Argument { return Argument{Kind: ArgU64, Value: v} }
func Nonce(v uint64) Argument { return Argument{Kind: ArgNonce, Value: v} }
func PubKey(b []byte) Argument { return Argument{Kind: ArgPubKey, Bytes: append([]byte(nil), b...)} }
func ByValue(e Encrypted) Argument {
	return Argument{Kind: ArgCiphertext, Value: e.Nonce, Ciphertexts: append([]Ciphertext(nil), e.Ciphertexts...)}
}

func ByRef(account string, offset, length uint32) Argument {
	return Argument{Kind: ArgRef, Ref: &Ref{Account: account, Offset: offset, Length: length}}
}

func (a Argument) Validate() error {
	switch a.Kind {
	case ArgU8:
		if a.Value > 0xff {
			return fmt.Errorf("u8 argument out of range: %d", a.Value)
		}
	case ArgU64, ArgNonce:
	case ArgPubKey:
		if len(a.Bytes) != 32 {
			return fmt.Errorf("pubkey argument must be 32 bytes, got %d", len(a.Bytes))
		}
	case ArgCiphertext:
		if len(a.Ciphertexts) == 0 {
			return fmt.Errorf("ciphertext argument is empty")
		}
	case ArgRef:
		if a.Ref == nil || a.Ref.Account == "" || a.Ref.Length == 0 {
			return fmt.Errorf("ref argument missing account/length")
		}
	default:
		return fmt.Errorf("unknown argument kind %q", a.Kind)
	}
	return nil
}

// Recipient declares who may decrypt the shared-domain outputs.
type Recipient struct {
	Domain Domain `json:"domain"`
	PubKey []byte `json:"pubKey,omitempty"`
}

// Partial holds the leading bytes of an oversized result while the rest
// travels over the side channel.
type Partial struct {
	Node  string `json:"node"`
	Head  []byte `json:"head"`
	Total uint32 `json:"total"`
}

// Request is a queued computation. The owning session stores it until the
// matching outcome is applied or discarded.
type Request struct {
	Key          string     `json:"key"`
	SessionID    uint64     `json:"sessionId"`
	Circuit      Circuit    `json:"circuit"`
	CompDefID    uint32     `json:"compDefId"`
	Args         []Argument `json:"args"`
	Recipient    Recipient  `json:"recipient"`
	QueueID      uint64     `json:"queueId"`
	OriginTx     TxRef      `json:"originTx"`
	QueuedHeight int64      `json:"queuedHeight"`

	Partial *Partial `json:"partial,omitempty"`
}

func (r *Request) Validate() error {
	if r == nil {
		return errorsmod.Wrap(ErrInvalidRequest, "nil request")
	}
	if r.Key == "" {
		return errorsmod.Wrap(ErrInvalidRequest, "missing key")
	}
	if !r.Circuit.Known() {
		return errorsmod.Wrapf(ErrUnknownCircuit, "%q", r.Circuit)
	}
	if r.CompDefID != r.Circuit.CompDefID() {
		return errorsmod.Wrapf(ErrInvalidRequest, "compDefId %d does not match circuit %s", r.CompDefID, r.Circuit)
	}
	if r.Recipient.Domain == DomainShared && len(r.Recipient.PubKey) != ed25519.PublicKeySize {
		return errorsmod.Wrap(ErrInvalidRequest, "shared recipient requires a 32-byte public key")
	}
	for i, a := range r.Args {
		if err := a.Validate(); err != nil {
			return errorsmod.Wrapf(ErrInvalidRequest, "arg %d: %v", i, err)
		}
	}
	return nil
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Args = make([]Argument, len(r.Args))
	for i, a := range r.Args {
		out.Args[i] = a
		out.Args[i].Bytes = append([]byte(nil), a.Bytes...)
		out.Args[i].Ciphertexts = append([]Ciphertext(nil), a.Ciphertexts...)
		if a.Ref != nil {
			ref := *a.Ref
			out.Args[i].Ref = &ref
		}
	}
	out.Recipient.PubKey = append([]byte(nil), r.Recipient.PubKey...)
	if r.Partial != nil {
		p := *r.Partial
		p.Head = append([]byte(nil), r.Partial.Head...)
		out.Partial = &p
	}
	return &out
}
