package dto

// CreateUserRequest aceita "Username" ou "username" (match case-insensitive do encoding/json).
type CreateUserRequest struct {
	Username string `json:"username"`
}

// PlaceBetRequest não tem odds: a odd é sempre a do snapshot.
type PlaceBetRequest struct {
	Username string `json:"username"`
	MatchID  string `json:"matchId"`
	Amount   int64  `json:"amount"`
	Team     string `json:"team"` // "red" | "blue"
}

type EndBetRequest struct {
	Username string `json:"username"`
	MatchID  string `json:"matchId"`
}
