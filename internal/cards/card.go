package cards

import (
	"crypto/sha256"
	"encoding/binary"
)

// Card is a deck index. 0..51 are real cards; NotDealt pads unused hand slots.
type Card uint8

const (
	DeckSize = 52

	// NotDealt marks a hand slot that holds no card.
	NotDealt Card = 53
)

// Rank is 0 (ace) .. 12 (king).
func (c Card) Rank() uint8 {
	return uint8(c % 13)
}

// Suit is 0..3 (clubs, diamonds, hearts, spades).
func (c Card) Suit() uint8 {
	return uint8(c / 13)
}

func (c Card) Valid() bool {
	return c < DeckSize
}

func (c Card) String() string {
	if !c.Valid() {
		return "--"
	}
	var rch byte
	switch r := c.Rank(); r {
	case 0:
		rch = 'A'
	case 9:
		rch = 'T'
	case 10:
		rch = 'J'
	case 11:
		rch = 'Q'
	case 12:
		rch = 'K'
	default:
		rch = byte('1' + r)
	}
	var sch byte
	switch c.Suit() {
	case 0:
		sch = 'c'
	case 1:
		sch = 'd'
	case 2:
		sch = 'h'
	default:
		sch = 's'
	}
	return string([]byte{rch, sch})
}

// IdentityDeck returns 0..51 in order.
func IdentityDeck() [DeckSize]Card {
	var deck [DeckSize]Card
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}

// DeterministicDeck shuffles the identity deck with Fisher-Yates driven by
// sha256(seed || u64le(counter)).
func DeterministicDeck(seed []byte) [DeckSize]Card {
	deck := IdentityDeck()
	var counter uint64
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)
	for i := DeckSize - 1; i > 0; i-- {
		binary.LittleEndian.PutUint64(buf[len(seed):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// IsPermutation reports whether deck holds each of 0..51 exactly once.
func IsPermutation(deck []Card) bool {
	if len(deck) != DeckSize {
		return false
	}
	var seen [DeckSize]bool
	for _, c := range deck {
		if !c.Valid() || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}
