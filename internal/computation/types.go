package computation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const CiphertextSize = 32

// Ciphertext is an opaque fixed-size encrypted blob.
type Ciphertext [CiphertextSize]byte

func (c Ciphertext) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(c[:])), nil
}

func (c *Ciphertext) UnmarshalText(b []byte) error {
	return decodeFixedHex(c[:], string(b), "ciphertext")
}

// TxRef is the sha256 hash of the transaction that queued a request.
type TxRef [32]byte

func (r TxRef) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(r[:])), nil
}

func (r *TxRef) UnmarshalText(b []byte) error {
	return decodeFixedHex(r[:], string(b), "tx ref")
}

func (r TxRef) IsZero() bool {
	return r == TxRef{}
}

func decodeFixedHex(dst []byte, s string, what string) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%s: expected %d bytes, got %d", what, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// Domain says who can decrypt a value.
type Domain uint8

const (
	DomainNone   Domain = iota // revealed
	DomainMXE                  // the computation cluster only
	DomainShared               // the cluster and one participant
)

func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "none"
	case DomainMXE:
		return "mxe"
	case DomainShared:
		return "shared"
	default:
		return fmt.Sprintf("domain(%d)", uint8(d))
	}
}

func (d Domain) Valid() bool {
	return d <= DomainShared
}

func (d Domain) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid domain %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Domain) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*d = DomainNone
	case "mxe":
		*d = DomainMXE
	case "shared":
		*d = DomainShared
	default:
		return fmt.Errorf("invalid domain %q", string(b))
	}
	return nil
}

// Encrypted is a sealed value with the nonce it was sealed under.
type Encrypted struct {
	Nonce       uint64       `json:"nonce"`
	Ciphertexts []Ciphertext `json:"ciphertexts"`
}

func (e Encrypted) Clone() Encrypted {
	return Encrypted{Nonce: e.Nonce, Ciphertexts: append([]Ciphertext(nil), e.Ciphertexts...)}
}

func (e Encrypted) IsZero() bool {
	return e.Nonce == 0 && len(e.Ciphertexts) == 0
}
