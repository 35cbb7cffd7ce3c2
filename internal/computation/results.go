package computation

import (
	errorsmod "cosmossdk.io/errors"
)

// Blob counts of the encrypted values each circuit produces.
const (
	DeckCiphertexts = 3
	HandCiphertexts = 1
)

// DealResult is the output of shuffle_and_deal.
type DealResult struct {
	Deck         Encrypted // mxe
	DealerHand   Encrypted // mxe
	PlayerHand   Encrypted // shared with the player
	DealerFaceUp uint8     // revealed
}

func (r DealResult) Fields() []ResultField {
	return []ResultField{
		EncryptedField(DomainMXE, r.Deck),
		EncryptedField(DomainMXE, r.DealerHand),
		EncryptedField(DomainShared, r.PlayerHand),
		PlainU8(r.DealerFaceUp),
	}
}

func DecodeDealResult(s Success) (DealResult, error) {
	r := fieldReader{circuit: CircuitShuffleAndDeal, fields: s.Fields}
	out := DealResult{
		Deck:         r.encrypted(DomainMXE, DeckCiphertexts),
		DealerHand:   r.encrypted(DomainMXE, HandCiphertexts),
		PlayerHand:   r.encrypted(DomainShared, HandCiphertexts),
		DealerFaceUp: r.u8(),
	}
	return out, r.done()
}

// HitResult is the output of player_hit and player_double_down.
type HitResult struct {
	PlayerHand Encrypted
	Bust       bool
}

func (r HitResult) Fields() []ResultField {
	return []ResultField{
		EncryptedField(DomainShared, r.PlayerHand),
		PlainBool(r.Bust),
	}
}

func DecodeHitResult(c Circuit, s Success) (HitResult, error) {
	r := fieldReader{circuit: c, fields: s.Fields}
	out := HitResult{
		PlayerHand: r.encrypted(DomainShared, HandCiphertexts),
		Bust:       r.flag(),
	}
	return out, r.done()
}

// StandResult is the output of player_stand.
type StandResult struct {
	Bust bool
}

func (r StandResult) Fields() []ResultField {
	return []ResultField{PlainBool(r.Bust)}
}

func DecodeStandResult(s Success) (StandResult, error) {
	r := fieldReader{circuit: CircuitPlayerStand, fields: s.Fields}
	out := StandResult{Bust: r.flag()}
	return out, r.done()
}

// DealerPlayResult is the output of dealer_play. DealerDisplay is the final
// dealer hand re-sealed to the player for display.
type DealerPlayResult struct {
	DealerHand    Encrypted
	DealerDisplay Encrypted
	DealerSize    uint8
}

func (r DealerPlayResult) Fields() []ResultField {
	return []ResultField{
		EncryptedField(DomainMXE, r.DealerHand),
		EncryptedField(DomainShared, r.DealerDisplay),
		PlainU8(r.DealerSize),
	}
}

func DecodeDealerPlayResult(s Success) (DealerPlayResult, error) {
	r := fieldReader{circuit: CircuitDealerPlay, fields: s.Fields}
	out := DealerPlayResult{
		DealerHand:    r.encrypted(DomainMXE, HandCiphertexts),
		DealerDisplay: r.encrypted(DomainShared, HandCiphertexts),
		DealerSize:    r.u8(),
	}
	return out, r.done()
}

// ResolveResult is the output of resolve_game. All fields are revealed.
type ResolveResult struct {
	Winner      uint8
	PlayerValue uint8
	DealerValue uint8
}

func (r ResolveResult) Fields() []ResultField {
	return []ResultField{PlainU8(r.Winner), PlainU8(r.PlayerValue), PlainU8(r.DealerValue)}
}

func DecodeResolveResult(s Success) (ResolveResult, error) {
	r := fieldReader{circuit: CircuitResolveGame, fields: s.Fields}
	out := ResolveResult{
		Winner:      r.u8(),
		PlayerValue: r.u8(),
		DealerValue: r.u8(),
	}
	return out, r.done()
}

// fieldReader walks result fields in order and keeps the first error.
type fieldReader struct {
	circuit Circuit
	fields  []ResultField
	pos     int
	err     error
}

func (r *fieldReader) next() (ResultField, bool) {
	if r.err != nil {
		return ResultField{}, false
	}
	if r.pos >= len(r.fields) {
		r.err = errorsmod.Wrapf(ErrResultShape, "%s: missing field %d", r.circuit, r.pos)
		return ResultField{}, false
	}
	f := r.fields[r.pos]
	r.pos++
	return f, true
}

func (r *fieldReader) encrypted(d Domain, blobs int) Encrypted {
	f, ok := r.next()
	if !ok {
		return Encrypted{}
	}
	if f.Domain != d {
		r.err = errorsmod.Wrapf(ErrResultShape, "%s: field %d domain %s, want %s", r.circuit, r.pos-1, f.Domain, d)
		return Encrypted{}
	}
	if len(f.Ciphertexts) != blobs {
		r.err = errorsmod.Wrapf(ErrResultShape, "%s: field %d has %d ciphertexts, want %d", r.circuit, r.pos-1, len(f.Ciphertexts), blobs)
		return Encrypted{}
	}
	return Encrypted{Nonce: f.Nonce, Ciphertexts: append([]Ciphertext(nil), f.Ciphertexts...)}
}

func (r *fieldReader) u8() uint8 {
	f, ok := r.next()
	if !ok {
		return 0
	}
	if f.Domain != DomainNone || len(f.Plain) != 1 {
		r.err = errorsmod.Wrapf(ErrResultShape, "%s: field %d is not a revealed u8", r.circuit, r.pos-1)
		return 0
	}
	return f.Plain[0]
}

func (r *fieldReader) flag() bool {
	v := r.u8()
	if r.err == nil && v > 1 {
		r.err = errorsmod.Wrapf(ErrResultShape, "%s: field %d is not a bool", r.circuit, r.pos-1)
	}
	return v == 1
}

func (r *fieldReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.fields) {
		return errorsmod.Wrapf(ErrResultShape, "%s: %d unexpected trailing fields", r.circuit, len(r.fields)-r.pos)
	}
	return nil
}
