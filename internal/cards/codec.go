package cards

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// Packing layout: 6 bits per card, base 64, least significant slot first.
// A 128-bit chunk holds 21 cards in its low 126 bits.
const (
	BitsPerCard   = 6
	CardMask      = 0x3F
	ChunkBits     = 128
	ChunkBytes    = ChunkBits / 8
	CardsPerChunk = ChunkBits / BitsPerCard

	DeckChunks = 3
	HandSlots  = 11
)

// EncodeChunk packs up to CardsPerChunk values. Slots past len(cards) are zero.
func EncodeChunk(cards []Card) (sdkmath.Uint, error) {
	if len(cards) > CardsPerChunk {
		return sdkmath.Uint{}, fmt.Errorf("chunk holds at most %d cards, got %d", CardsPerChunk, len(cards))
	}
	acc := new(big.Int)
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i] > CardMask {
			return sdkmath.Uint{}, fmt.Errorf("card value %d at slot %d does not fit in %d bits", cards[i], i, BitsPerCard)
		}
		acc.Lsh(acc, BitsPerCard)
		acc.Or(acc, big.NewInt(int64(cards[i])))
	}
	return sdkmath.NewUintFromBigInt(acc), nil
}

// DecodeChunk extracts every 6-bit group of the low 126 bits. It never fails;
// the result only means something if chunk came from EncodeChunk.
func DecodeChunk(chunk sdkmath.Uint) [CardsPerChunk]Card {
	var out [CardsPerChunk]Card
	v := chunk.BigInt()
	if v == nil {
		return out
	}
	mask := big.NewInt(CardMask)
	slot := new(big.Int)
	for i := 0; i < CardsPerChunk; i++ {
		slot.Rsh(v, uint(BitsPerCard*i))
		slot.And(slot, mask)
		out[i] = Card(slot.Uint64())
	}
	return out
}

// Encode packs cards into exactly n chunks, filling chunk c with
// cards[c*CardsPerChunk : (c+1)*CardsPerChunk].
func Encode(cards []Card, n int) ([]sdkmath.Uint, error) {
	if len(cards) > n*CardsPerChunk {
		return nil, fmt.Errorf("%d cards do not fit in %d chunks", len(cards), n)
	}
	out := make([]sdkmath.Uint, n)
	for c := 0; c < n; c++ {
		lo := c * CardsPerChunk
		hi := lo + CardsPerChunk
		if lo > len(cards) {
			lo = len(cards)
		}
		if hi > len(cards) {
			hi = len(cards)
		}
		u, err := EncodeChunk(cards[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c, err)
		}
		out[c] = u
	}
	return out, nil
}

// Decode unpacks the first n cards held by chunks.
func Decode(chunks []sdkmath.Uint, n int) []Card {
	out := make([]Card, 0, n)
	for _, ch := range chunks {
		slots := DecodeChunk(ch)
		for _, c := range slots {
			if len(out) == n {
				return out
			}
			out = append(out, c)
		}
	}
	return out
}

func EncodeDeck(deck [DeckSize]Card) ([DeckChunks]sdkmath.Uint, error) {
	var out [DeckChunks]sdkmath.Uint
	chunks, err := Encode(deck[:], DeckChunks)
	if err != nil {
		return out, err
	}
	copy(out[:], chunks)
	return out, nil
}

func DecodeDeck(chunks [DeckChunks]sdkmath.Uint) [DeckSize]Card {
	var out [DeckSize]Card
	copy(out[:], Decode(chunks[:], DeckSize))
	return out
}

// EncodeHand pads hand to HandSlots with NotDealt and packs it into one chunk.
// The hand size is not stored in the chunk.
func EncodeHand(hand []Card) (sdkmath.Uint, error) {
	if len(hand) > HandSlots {
		return sdkmath.Uint{}, fmt.Errorf("hand holds at most %d cards, got %d", HandSlots, len(hand))
	}
	var slots [HandSlots]Card
	for i := range slots {
		slots[i] = NotDealt
	}
	copy(slots[:], hand)
	return EncodeChunk(slots[:])
}

func DecodeHand(chunk sdkmath.Uint) [HandSlots]Card {
	var out [HandSlots]Card
	all := DecodeChunk(chunk)
	copy(out[:], all[:HandSlots])
	return out
}

// ChunkToBytes returns the 16-byte little-endian form of a chunk.
func ChunkToBytes(chunk sdkmath.Uint) ([ChunkBytes]byte, error) {
	var out [ChunkBytes]byte
	v := chunk.BigInt()
	if v == nil {
		return out, nil
	}
	if v.BitLen() > ChunkBits {
		return out, fmt.Errorf("chunk exceeds %d bits", ChunkBits)
	}
	var be [ChunkBytes]byte
	v.FillBytes(be[:])
	for i := range be {
		out[i] = be[ChunkBytes-1-i]
	}
	return out, nil
}

// ChunkFromBytes reads a little-endian chunk. Only the first ChunkBytes bytes
// of b are used.
func ChunkFromBytes(b []byte) (sdkmath.Uint, error) {
	if len(b) < ChunkBytes {
		return sdkmath.Uint{}, fmt.Errorf("chunk needs %d bytes, got %d", ChunkBytes, len(b))
	}
	var be [ChunkBytes]byte
	for i := 0; i < ChunkBytes; i++ {
		be[i] = b[ChunkBytes-1-i]
	}
	return sdkmath.NewUintFromBigInt(new(big.Int).SetBytes(be[:])), nil
}
