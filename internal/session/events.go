package session

const (
	EventTypeSessionCreated    = "SessionCreated"
	EventTypeComputationQueued = "ComputationQueued"
	EventTypeCardsDealt        = "CardsDealt"
	EventTypePlayerHit         = "PlayerHit"
	EventTypePlayerDoubled     = "PlayerDoubled"
	EventTypePlayerStood       = "PlayerStood"
	EventTypeDealerPlayed      = "DealerPlayed"
	EventTypeGameResolved      = "GameResolved"
	EventTypeComputationFailed = "ComputationFailed"
	EventTypeOutcomeDiscarded  = "OutcomeDiscarded"
	EventTypeTurnTimedOut      = "TurnTimedOut"
	EventTypeSessionClosed     = "SessionClosed"
)

// Event is a public notification. Attributes never carry ciphertexts.
type Event struct {
	Type  string
	Attrs map[string]string
}
