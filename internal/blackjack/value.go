package blackjack

import "github.com/stanleykosi/veridian/internal/cards"

const (
	Blackjack = 21

	// DealerStandsOn is the lowest value at which the dealer stops drawing.
	DealerStandsOn = 17

	// InitialHandSize is the number of cards each side holds after the deal.
	InitialHandSize = 2
)

type Score struct {
	Value int
	Soft  bool // an ace is still counted as 11
}

// Evaluate scores hand[0:size]. Slots at or past size are never read.
// Aces count 11; if that busts the hand, exactly one ace drops to 1.
func Evaluate(hand []cards.Card, size int) Score {
	if size > len(hand) {
		size = len(hand)
	}
	total, aces := 0, 0
	for i := 0; i < size; i++ {
		total += cardValue(hand[i])
		if hand[i].Rank() == 0 {
			aces++
		}
	}
	if total > Blackjack && aces > 0 {
		return Score{Value: total - 10, Soft: aces > 1}
	}
	return Score{Value: total, Soft: aces > 0}
}

func HandValue(hand []cards.Card, size int) int {
	return Evaluate(hand, size).Value
}

func cardValue(c cards.Card) int {
	switch r := c.Rank(); {
	case r == 0:
		return 11
	case r >= 10:
		return 10
	default:
		return int(r) + 1
	}
}

func Bust(value int) bool {
	return value > Blackjack
}

func DealerShouldDraw(value int) bool {
	return value < DealerStandsOn
}

// Natural reports a two-card 21.
func Natural(hand []cards.Card, size int) bool {
	return size == InitialHandSize && HandValue(hand, size) == Blackjack
}

// DrawIndex is the next unused deck position given both hand sizes.
func DrawIndex(playerSize, dealerSize int) int {
	return playerSize + dealerSize
}

// InitialDeal deals alternately from the top: player 0,2 and dealer 1,3.
func InitialDeal(deck [cards.DeckSize]cards.Card) (player, dealer []cards.Card) {
	return []cards.Card{deck[0], deck[2]}, []cards.Card{deck[1], deck[3]}
}

// DealerPlay draws for the dealer from deck until the hand reaches
// DealerStandsOn or maxDraws cards have been taken. It returns the new hand.
func DealerPlay(deck [cards.DeckSize]cards.Card, dealer []cards.Card, playerSize int, maxDraws int) []cards.Card {
	out := append([]cards.Card(nil), dealer...)
	for draws := 0; draws < maxDraws; draws++ {
		if !DealerShouldDraw(HandValue(out, len(out))) || len(out) >= cards.HandSlots {
			break
		}
		idx := DrawIndex(playerSize, len(out))
		if idx >= cards.DeckSize {
			break
		}
		out = append(out, deck[idx])
	}
	return out
}
