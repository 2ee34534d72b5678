package events

import "github.com/shopspring/decimal"

// WagerPlaced é publicado após o commit de uma aposta.
type WagerPlaced struct {
	WagerID   string          `json:"wager_id"`
	AccountID int64           `json:"account_id"`
	Username  string          `json:"username"`
	MatchID   string          `json:"match_id"`
	Side      string          `json:"side"` // "red" | "blue"
	Amount    int64           `json:"amount"`
	Odds      decimal.Decimal `json:"odds"`
	Balance   int64           `json:"balance"` // saldo após o débito
	TsUnixMs  int64           `json:"ts_unix_ms"`
}
