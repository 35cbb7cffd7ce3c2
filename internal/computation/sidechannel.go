package computation

import (
	"crypto/ed25519"
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
)

// Side-channel payload layout, fixed widths in order:
//
//	queueId u64le | compDefId u32le | originTx [32] | signature [64] | signer [32] | data
const SideChannelHeaderSize = 8 + 4 + 32 + ed25519.SignatureSize + ed25519.PublicKeySize

// SideChannelPayload carries the tail of an oversized result. The signature
// covers Data only; the references bind it to the outstanding request.
type SideChannelPayload struct {
	QueueID   uint64
	CompDefID uint32
	OriginTx  TxRef
	Signature [ed25519.SignatureSize]byte
	Signer    [ed25519.PublicKeySize]byte
	Data      []byte
}

func SignSideChannel(key ed25519.PrivateKey, queueID uint64, compDefID uint32, origin TxRef, data []byte) SideChannelPayload {
	p := SideChannelPayload{
		QueueID:   queueID,
		CompDefID: compDefID,
		OriginTx:  origin,
		Data:      append([]byte(nil), data...),
	}
	copy(p.Signature[:], ed25519.Sign(key, data))
	copy(p.Signer[:], key.Public().(ed25519.PublicKey))
	return p
}

// VerifySignature checks the signature over Data against the declared signer.
func (p SideChannelPayload) VerifySignature() bool {
	return ed25519.Verify(ed25519.PublicKey(p.Signer[:]), p.Data, p.Signature[:])
}

func (p SideChannelPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, SideChannelHeaderSize+len(p.Data))
	out = binary.LittleEndian.AppendUint64(out, p.QueueID)
	out = binary.LittleEndian.AppendUint32(out, p.CompDefID)
	out = append(out, p.OriginTx[:]...)
	out = append(out, p.Signature[:]...)
	out = append(out, p.Signer[:]...)
	out = append(out, p.Data...)
	return out, nil
}

func (p *SideChannelPayload) UnmarshalBinary(b []byte) error {
	if len(b) < SideChannelHeaderSize {
		return errorsmod.Wrapf(ErrMalformedPayload, "side-channel payload too short: %d bytes", len(b))
	}
	p.QueueID = binary.LittleEndian.Uint64(b[0:8])
	p.CompDefID = binary.LittleEndian.Uint32(b[8:12])
	off := 12
	off += copy(p.OriginTx[:], b[off:off+32])
	off += copy(p.Signature[:], b[off:off+ed25519.SignatureSize])
	off += copy(p.Signer[:], b[off:off+ed25519.PublicKeySize])
	p.Data = append([]byte(nil), b[off:]...)
	return nil
}
