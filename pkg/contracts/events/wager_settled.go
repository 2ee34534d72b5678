package events

import "github.com/shopspring/decimal"

// Evento emitido pelo engine de liquidação depois do crédito.
type WagerSettled struct {
	WagerID   string          `json:"wager_id"`
	AccountID int64           `json:"account_id"`
	Username  string          `json:"username"`
	MatchID   string          `json:"match_id"`
	Side      string          `json:"side"`
	Amount    int64           `json:"amount"`
	Odds      decimal.Decimal `json:"odds"`
	Winnings  int64           `json:"winnings"`
	Balance   int64           `json:"balance"`
	TsUnixMs  int64           `json:"ts_unix_ms"`
}
