package mpc

import (
	sdkmath "cosmossdk.io/math"

	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/seal"
)

// Fields sealed under the same key and nonce use disjoint block indexes.
const (
	streamDeck    uint32 = 0 << 8
	streamDealer  uint32 = 1 << 8
	streamPlayer  uint32 = 2 << 8
	streamDisplay uint32 = 3 << 8
)

func sealChunks(key seal.Key, nonce uint64, stream uint32, chunks []sdkmath.Uint) (computation.Encrypted, error) {
	out := computation.Encrypted{Nonce: nonce, Ciphertexts: make([]computation.Ciphertext, len(chunks))}
	for i, ch := range chunks {
		b, err := cards.ChunkToBytes(ch)
		if err != nil {
			return computation.Encrypted{}, err
		}
		var block [seal.BlockSize]byte
		copy(block[:], b[:])
		ct, err := seal.Seal(key, nonce, stream|uint32(i), block)
		if err != nil {
			return computation.Encrypted{}, err
		}
		out.Ciphertexts[i] = computation.Ciphertext(ct)
	}
	return out, nil
}

func openChunks(key seal.Key, nonce uint64, stream uint32, cts []computation.Ciphertext) ([]sdkmath.Uint, error) {
	out := make([]sdkmath.Uint, len(cts))
	for i, ct := range cts {
		block, err := seal.Open(key, nonce, stream|uint32(i), ct)
		if err != nil {
			return nil, err
		}
		// Upper half of a block is zero padding; anything else means the
		// wrong key or nonce.
		for _, b := range block[cards.ChunkBytes:] {
			if b != 0 {
				return nil, abortf("ciphertext %d does not decrypt under the expected key", i)
			}
		}
		ch, err := cards.ChunkFromBytes(block[:cards.ChunkBytes])
		if err != nil {
			return nil, err
		}
		out[i] = ch
	}
	return out, nil
}

func sealDeck(key seal.Key, nonce uint64, deck [cards.DeckSize]cards.Card) (computation.Encrypted, error) {
	chunks, err := cards.EncodeDeck(deck)
	if err != nil {
		return computation.Encrypted{}, err
	}
	return sealChunks(key, nonce, streamDeck, chunks[:])
}

func openDeck(key seal.Key, nonce uint64, cts []computation.Ciphertext) ([cards.DeckSize]cards.Card, error) {
	if len(cts) != cards.DeckChunks {
		return [cards.DeckSize]cards.Card{}, abortf("deck needs %d ciphertexts, got %d", cards.DeckChunks, len(cts))
	}
	chunks, err := openChunks(key, nonce, streamDeck, cts)
	if err != nil {
		return [cards.DeckSize]cards.Card{}, err
	}
	deck := cards.DecodeDeck([cards.DeckChunks]sdkmath.Uint{chunks[0], chunks[1], chunks[2]})
	if !cards.IsPermutation(deck[:]) {
		return deck, abortf("decrypted deck is not a permutation")
	}
	return deck, nil
}

func sealHand(key seal.Key, nonce uint64, stream uint32, hand []cards.Card) (computation.Encrypted, error) {
	chunk, err := cards.EncodeHand(hand)
	if err != nil {
		return computation.Encrypted{}, err
	}
	return sealChunks(key, nonce, stream, []sdkmath.Uint{chunk})
}

// openHand decrypts a hand and returns its first size cards.
func openHand(key seal.Key, e computation.Encrypted, stream uint32, size uint8) ([]cards.Card, error) {
	if len(e.Ciphertexts) != computation.HandCiphertexts {
		return nil, abortf("hand needs %d ciphertext, got %d", computation.HandCiphertexts, len(e.Ciphertexts))
	}
	if int(size) > cards.HandSlots {
		return nil, abortf("hand size %d exceeds %d slots", size, cards.HandSlots)
	}
	chunks, err := openChunks(key, e.Nonce, stream, e.Ciphertexts)
	if err != nil {
		return nil, err
	}
	slots := cards.DecodeHand(chunks[0])
	hand := append([]cards.Card(nil), slots[:size]...)
	for i, c := range hand {
		if !c.Valid() {
			return nil, abortf("hand slot %d holds %d", i, c)
		}
	}
	return hand, nil
}

// OpenPlayerHand lets the holder of the player's secret read their hand.
func OpenPlayerHand(player seal.Scalar, mxe seal.Point, e computation.Encrypted, size uint8) ([]cards.Card, error) {
	key, err := seal.SharedKey(player, mxe)
	if err != nil {
		return nil, err
	}
	return openHand(key, e, streamPlayer, size)
}

// OpenDealerDisplay reads the dealer's hand as re-encrypted for the player.
func OpenDealerDisplay(player seal.Scalar, mxe seal.Point, e computation.Encrypted, size uint8) ([]cards.Card, error) {
	key, err := seal.SharedKey(player, mxe)
	if err != nil {
		return nil, err
	}
	return openHand(key, e, streamDisplay, size)
}
