package blackjack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stanleykosi/veridian/internal/cards"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name string
		hand []cards.Card
		want Score
	}{
		{"ace king", []cards.Card{0, 12}, Score{Value: 21, Soft: true}},
		{"ace three", []cards.Card{0, 2}, Score{Value: 14, Soft: true}},
		{"ten jack", []cards.Card{9, 23}, Score{Value: 20}},
		{"two aces", []cards.Card{0, 13}, Score{Value: 12, Soft: true}},
		{"two aces and a nine", []cards.Card{0, 13, 8}, Score{Value: 21, Soft: true}},
		{"ace demoted", []cards.Card{0, 8, 7}, Score{Value: 18}},
		{"bust without ace", []cards.Card{12, 11, 1}, Score{Value: 22}},
		{"three aces single demotion", []cards.Card{0, 13, 26}, Score{Value: 23, Soft: true}},
		{"empty", nil, Score{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Evaluate(tc.hand, len(tc.hand)))
		})
	}
}

func TestEvaluateReadsOnlySize(t *testing.T) {
	hand := []cards.Card{0, 2, cards.NotDealt, cards.NotDealt, 12}
	require.Equal(t, 14, HandValue(hand, 2))
	require.Equal(t, 11, HandValue(hand, 1))
	require.Equal(t, 0, HandValue(hand, 0))
	// size beyond the slice is clamped
	require.Equal(t, 14, HandValue(hand[:2], 9))
}

func TestHandValueBounds(t *testing.T) {
	for seed := 0; seed < 64; seed++ {
		deck := cards.DeterministicDeck([]byte{byte(seed)})
		for size := 1; size <= cards.HandSlots; size++ {
			hand := deck[:size]
			v := HandValue(hand, size)
			require.GreaterOrEqual(t, v, size)
			require.LessOrEqual(t, v, size*11)

			raw := 0
			for _, c := range hand {
				raw += cardValue(c)
			}
			// at most one demotion
			require.GreaterOrEqual(t, v, raw-10)
		}
	}
}

func TestIdentityDeckScenario(t *testing.T) {
	player, dealer := InitialDeal(cards.IdentityDeck())
	require.Equal(t, []cards.Card{0, 2}, player)
	require.Equal(t, []cards.Card{1, 3}, dealer)

	s := Evaluate(player, len(player))
	require.Equal(t, 14, s.Value)
	require.True(t, s.Soft)
	require.False(t, Bust(s.Value))

	require.Equal(t, uint8(1), dealer[0].Rank())
	require.Equal(t, 2, HandValue(dealer[:1], 1))
	require.Equal(t, 4, DrawIndex(len(player), len(dealer)))
}

func TestDealerPlay(t *testing.T) {
	deck := cards.IdentityDeck()
	// dealer {1,3} = 2+4 = 6, draws deck[4] (5) -> 11, deck[5] (6) -> 17.
	got := DealerPlay(deck, []cards.Card{1, 3}, 2, 7)
	require.Equal(t, []cards.Card{1, 3, 4, 5}, got)
	require.Equal(t, 6+5+6, HandValue(got, len(got)))
	require.False(t, DealerShouldDraw(HandValue(got, len(got))))

	// the bound stops the loop before the threshold
	got = DealerPlay(deck, []cards.Card{1, 3}, 2, 1)
	require.Len(t, got, 3)

	// already standing
	got = DealerPlay(deck, []cards.Card{12, 11}, 2, 7)
	require.Len(t, got, 2)
}

func TestResolveOrder(t *testing.T) {
	require.Equal(t, WinnerDealer, Resolve(24, 25), "player bust beats dealer bust")
	require.Equal(t, WinnerPlayer, Resolve(18, 22))
	require.Equal(t, WinnerPlayer, Resolve(20, 19))
	require.Equal(t, WinnerDealer, Resolve(17, 19))
	require.Equal(t, WinnerPush, Resolve(18, 18))
}

func TestSettle(t *testing.T) {
	got, err := Settle(100, false, WinnerPlayer, false)
	require.NoError(t, err)
	require.Equal(t, uint64(200), got)

	got, err = Settle(100, true, WinnerPlayer, false)
	require.NoError(t, err)
	require.Equal(t, uint64(400), got)

	got, err = Settle(100, false, WinnerPlayer, true)
	require.NoError(t, err)
	require.Equal(t, uint64(250), got)

	got, err = Settle(100, true, WinnerPush, false)
	require.NoError(t, err)
	require.Equal(t, uint64(200), got)

	got, err = Settle(100, false, WinnerDealer, false)
	require.NoError(t, err)
	require.Zero(t, got)

	_, err = Settle(100, false, WinnerNone, false)
	require.Error(t, err)

	_, err = Settle(math.MaxUint64, true, WinnerPlayer, false)
	require.ErrorContains(t, err, "overflows uint64")
}

func TestParseWinner(t *testing.T) {
	w, err := ParseWinner(uint8(WinnerPush))
	require.NoError(t, err)
	require.Equal(t, WinnerPush, w)
	require.Equal(t, "push", w.String())

	_, err = ParseWinner(0)
	require.Error(t, err)
	_, err = ParseWinner(9)
	require.Error(t, err)
}
