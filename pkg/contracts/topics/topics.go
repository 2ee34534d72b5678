package topics

const (
	// Wagers
	WagerPlaced  = "wager_placed"
	WagerSettled = "wager_settled"

	// Canal Redis Pub/Sub do snapshot de partidas
	MatchUpdates = "match_updates_broadcast"
)
