package session

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"

	"github.com/stanleykosi/veridian/internal/blackjack"
	"github.com/stanleykosi/veridian/internal/cards"
	"github.com/stanleykosi/veridian/internal/computation"
)

type Phase string

const (
	PhaseInitial    Phase = "initial"
	PhasePlayerTurn Phase = "player_turn"
	PhaseDealerTurn Phase = "dealer_turn"
	PhaseResolving  Phase = "resolving"
	PhaseResolved   Phase = "resolved"
)

type Action string

const (
	ActionDeal       Action = "deal"
	ActionHit        Action = "hit"
	ActionDoubleDown Action = "double_down"
	ActionStand      Action = "stand"
	ActionDealerPlay Action = "dealer_play"
	ActionResolve    Action = "resolve"
)

// Session is one blackjack game between a player and the dealer. Encrypted
// fields are only ever written by a successful outcome.
type Session struct {
	ID           uint64 `json:"id"`
	Player       string `json:"player"`
	PlayerPubKey []byte `json:"playerPubKey"` // shared-domain encryption key
	Bet          uint64 `json:"bet"`
	ClientNonce  uint64 `json:"clientNonce"`

	Phase Phase `json:"phase"`

	Deck          computation.Encrypted `json:"deck"`          // mxe
	DealerHand    computation.Encrypted `json:"dealerHand"`    // mxe
	PlayerHand    computation.Encrypted `json:"playerHand"`    // shared
	DealerDisplay computation.Encrypted `json:"dealerDisplay"` // shared, after dealer play

	PlayerHandSize uint8      `json:"playerHandSize"`
	DealerHandSize uint8      `json:"dealerHandSize"`
	DealerFaceUp   cards.Card `json:"dealerFaceUp"`

	PlayerStood   bool `json:"playerStood,omitempty"`
	PlayerDoubled bool `json:"playerDoubled,omitempty"`
	PlayerBust    bool `json:"playerBust,omitempty"`
	DealerBust    bool `json:"dealerBust,omitempty"`

	Winner      blackjack.Winner `json:"winner,omitempty"`
	PlayerValue uint8            `json:"playerValue,omitempty"`
	DealerValue uint8            `json:"dealerValue,omitempty"`
	Payout      uint64           `json:"payout,omitempty"`

	Pending     *computation.Request `json:"pending,omitempty"`
	RequestSeq  uint64               `json:"requestSeq"`
	LastFailure string               `json:"lastFailure,omitempty"`

	ActionDeadline int64 `json:"actionDeadline,omitempty"` // unix seconds, player turn only
	CreatedHeight  int64 `json:"createdHeight"`
	UpdatedHeight  int64 `json:"updatedHeight"`
	Closed         bool  `json:"closed,omitempty"`
}

// New returns a session in PhaseInitial. The deck is populated by the first
// successful deal.
func New(id uint64, player string, pubKey []byte, bet uint64, clientNonce uint64, height int64) (*Session, error) {
	if id == 0 {
		return nil, errorsmod.Wrap(ErrInvalidSession, "session id must be non-zero")
	}
	if player == "" {
		return nil, errorsmod.Wrap(ErrInvalidSession, "missing player")
	}
	if len(pubKey) != 32 {
		return nil, errorsmod.Wrapf(ErrInvalidSession, "player pubKey must be 32 bytes, got %d", len(pubKey))
	}
	if bet == 0 {
		return nil, errorsmod.Wrap(ErrInvalidSession, "bet must be positive")
	}
	return &Session{
		ID:            id,
		Player:        player,
		PlayerPubKey:  append([]byte(nil), pubKey...),
		Bet:           bet,
		ClientNonce:   clientNonce,
		Phase:         PhaseInitial,
		DealerFaceUp:  cards.NotDealt,
		CreatedHeight: height,
		UpdatedHeight: height,
	}, nil
}

// Clone returns a deep copy used to stage outcome application.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.PlayerPubKey = append([]byte(nil), s.PlayerPubKey...)
	out.Deck = s.Deck.Clone()
	out.DealerHand = s.DealerHand.Clone()
	out.PlayerHand = s.PlayerHand.Clone()
	out.DealerDisplay = s.DealerDisplay.Clone()
	out.Pending = s.Pending.Clone()
	return &out
}

// DeckAccount is where the cluster fetches the deck it is handed by reference.
func DeckAccount(id uint64) string {
	return fmt.Sprintf("session/%d/deck", id)
}

// Stake is the amount at risk: the bet, doubled after a double down.
func (s *Session) Stake() uint64 {
	if s.PlayerDoubled {
		return s.Bet * 2
	}
	return s.Bet
}
