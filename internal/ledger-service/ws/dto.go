package ws

import "github.com/radieske/wager-ledger/pkg/contracts/events"

// AllMatches é o ID de assinatura que recebe atualizações de todas as partidas.
const AllMatches = "*"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"` // requerido em subscribe/unsubscribe; "*" para todas
}

// MatchUpdate é o envelope enviado aos clientes inscritos.
type MatchUpdate struct {
	Type    string              `json:"type"` // "match_updated"
	MatchID string              `json:"matchId"`
	Payload events.MatchUpdated `json:"payload"`
}
