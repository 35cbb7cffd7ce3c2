package blackjack

import "fmt"

type Winner uint8

const (
	WinnerNone Winner = iota
	WinnerPlayer
	WinnerDealer
	WinnerPush
)

func (w Winner) String() string {
	switch w {
	case WinnerPlayer:
		return "player"
	case WinnerDealer:
		return "dealer"
	case WinnerPush:
		return "push"
	default:
		return "none"
	}
}

func ParseWinner(v uint8) (Winner, error) {
	w := Winner(v)
	switch w {
	case WinnerPlayer, WinnerDealer, WinnerPush:
		return w, nil
	default:
		return WinnerNone, fmt.Errorf("invalid winner %d", v)
	}
}

// Resolve compares final values. Order matters: a player bust loses even when
// the dealer also busts.
func Resolve(playerValue, dealerValue int) Winner {
	switch {
	case Bust(playerValue):
		return WinnerDealer
	case Bust(dealerValue):
		return WinnerPlayer
	case playerValue > dealerValue:
		return WinnerPlayer
	case dealerValue > playerValue:
		return WinnerDealer
	default:
		return WinnerPush
	}
}

// Settle returns what the table owes the player for a finished game. The
// stake doubles on a double down; a natural pays 3:2 on top of the stake.
func Settle(bet uint64, doubled bool, w Winner, natural bool) (uint64, error) {
	stake := bet
	if doubled {
		var err error
		stake, err = mulUint64Checked(bet, 2, "stake")
		if err != nil {
			return 0, err
		}
	}
	switch w {
	case WinnerPlayer:
		if natural && !doubled {
			bonus, err := mulUint64Checked(stake, 3, "natural bonus")
			if err != nil {
				return 0, err
			}
			return addUint64Checked(stake, bonus/2, "payout")
		}
		return mulUint64Checked(stake, 2, "payout")
	case WinnerPush:
		return stake, nil
	case WinnerDealer:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot settle unresolved game")
	}
}
