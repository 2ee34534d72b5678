package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type CreateUserResponse struct {
	Message  string `json:"message"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Currency int64  `json:"currency"`
}

type CurrencyResponse struct {
	Username string `json:"username"`
	Currency int64  `json:"currency"`
}

type User struct {
	Username string `json:"username"`
	Currency int64  `json:"currency"`
}

type UsersResponse struct {
	Users []User `json:"users"`
}

type Bet struct {
	WagerID  string          `json:"wager_id"`
	Username string          `json:"username"`
	MatchID  string          `json:"match_id"`
	Amount   int64           `json:"amount"`
	Odds     decimal.Decimal `json:"odds"`
	Team     string          `json:"team"`
	PlacedAt time.Time       `json:"placed_at"`
}

type BetsResponse struct {
	Bets []Bet `json:"bets"`
}

type PlaceBetResponse struct {
	Message string `json:"message"`
	Bet     Bet    `json:"bet"`
}

type EndBetResponse struct {
	Message  string `json:"message"`
	WagerID  string `json:"wager_id"`
	Winnings int64  `json:"winnings"`
	Currency int64  `json:"currency"`
}

type Match struct {
	MatchID string                     `json:"match_id"`
	EventID string                     `json:"event_id"`
	Time    time.Time                  `json:"time"`
	Red     []string                   `json:"red"`
	Blue    []string                   `json:"blue"`
	Odds    map[string]decimal.Decimal `json:"odds"`
}

type MatchesResponse struct {
	Matches []Match `json:"matches"`
}
