package computation

import (
	"encoding/binary"
	"math"

	errorsmod "cosmossdk.io/errors"
)

// ResultField is one output of a circuit. Revealed fields use DomainNone and
// carry Plain; encrypted fields carry a nonce and ciphertexts.
type ResultField struct {
	Domain      Domain       `json:"domain"`
	Nonce       uint64       `json:"nonce,omitempty"`
	Ciphertexts []Ciphertext `json:"ciphertexts,omitempty"`
	Plain       []byte       `json:"plain,omitempty"`
}

func EncryptedField(d Domain, e Encrypted) ResultField {
	return ResultField{Domain: d, Nonce: e.Nonce, Ciphertexts: append([]Ciphertext(nil), e.Ciphertexts...)}
}

func PlainU8(v uint8) ResultField {
	return ResultField{Domain: DomainNone, Plain: []byte{v}}
}

func PlainBool(v bool) ResultField {
	if v {
		return PlainU8(1)
	}
	return PlainU8(0)
}

// Binary layout per field:
//
//	domain u8 | nonce u64le | n u8 | n * 32-byte ciphertext | plainLen u16le | plain
const fieldHeaderSize = 1 + 8 + 1

// MarshalFields encodes fields in the binary form delivered by the cluster.
func MarshalFields(fields []ResultField) ([]byte, error) {
	if len(fields) > math.MaxUint8 {
		return nil, errorsmod.Wrapf(ErrMalformedPayload, "too many fields: %d", len(fields))
	}
	out := []byte{byte(len(fields))}
	for i, f := range fields {
		if !f.Domain.Valid() {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: invalid domain", i)
		}
		if len(f.Ciphertexts) > math.MaxUint8 {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: too many ciphertexts", i)
		}
		if len(f.Plain) > math.MaxUint16 {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: plain too long", i)
		}
		out = append(out, byte(f.Domain))
		out = binary.LittleEndian.AppendUint64(out, f.Nonce)
		out = append(out, byte(len(f.Ciphertexts)))
		for _, ct := range f.Ciphertexts {
			out = append(out, ct[:]...)
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(f.Plain)))
		out = append(out, f.Plain...)
	}
	return out, nil
}

func UnmarshalFields(b []byte) ([]ResultField, error) {
	if len(b) == 0 {
		return nil, errorsmod.Wrap(ErrMalformedPayload, "empty payload")
	}
	n := int(b[0])
	b = b[1:]
	out := make([]ResultField, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < fieldHeaderSize {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: short header", i)
		}
		f := ResultField{
			Domain: Domain(b[0]),
			Nonce:  binary.LittleEndian.Uint64(b[1:9]),
		}
		if !f.Domain.Valid() {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: invalid domain %d", i, b[0])
		}
		cts := int(b[9])
		b = b[fieldHeaderSize:]
		if len(b) < cts*CiphertextSize+2 {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: short ciphertexts", i)
		}
		if cts > 0 {
			f.Ciphertexts = make([]Ciphertext, cts)
			for j := range f.Ciphertexts {
				copy(f.Ciphertexts[j][:], b[j*CiphertextSize:(j+1)*CiphertextSize])
			}
		}
		b = b[cts*CiphertextSize:]
		plainLen := int(binary.LittleEndian.Uint16(b[:2]))
		b = b[2:]
		if len(b) < plainLen {
			return nil, errorsmod.Wrapf(ErrMalformedPayload, "field %d: short plain", i)
		}
		if plainLen > 0 {
			f.Plain = append([]byte(nil), b[:plainLen]...)
		}
		b = b[plainLen:]
		out = append(out, f)
	}
	if len(b) != 0 {
		return nil, errorsmod.Wrapf(ErrMalformedPayload, "%d trailing bytes", len(b))
	}
	return out, nil
}
