package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchOdds struct {
	Red  decimal.Decimal `json:"red"`
	Blue decimal.Decimal `json:"blue"`
}

// Mensagem publicada no canal Redis a cada upsert do snapshot de partidas
type MatchUpdated struct {
	MatchID     string    `json:"match_id"`
	EventID     string    `json:"event_id"`
	ScheduledAt time.Time `json:"time"`
	Red         []string  `json:"red"`
	Blue        []string  `json:"blue"`
	Odds        MatchOdds `json:"odds"`
	UpdatedAt   time.Time `json:"updated_at"`
}
