package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa as escritas de uma conexão; gorilla/websocket não
// aceita escritas concorrentes.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) writeRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por partida.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu sync.RWMutex
	// matchID -> conexões inscritas
	subs map[string]map[*client]struct{}
}

func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS atende uma conexão até o cliente desconectar.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.subscribe(c, msg.MatchID)
			_ = c.writeJSON(map[string]string{"type": "subscribed", "matchId": msg.MatchID})
		case "unsubscribe":
			h.unsubscribe(c, msg.MatchID)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) subscribe(c *client, matchID string) {
	if matchID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[matchID]; !ok {
		h.subs[matchID] = make(map[*client]struct{})
	}
	h.subs[matchID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[matchID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, matchID)
		}
	}
}

// Subscribers conta as conexões inscritas em matchID.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[matchID])
}

// Broadcast envia a atualização para quem assina a partida ou "*".
func (h *Hub) Broadcast(upd events.MatchUpdated) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[upd.MatchID])+len(h.subs[AllMatches]))
	for c := range h.subs[upd.MatchID] {
		targets = append(targets, c)
	}
	for c := range h.subs[AllMatches] {
		if _, dup := h.subs[upd.MatchID][c]; !dup {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(MatchUpdate{Type: "match_updated", MatchID: upd.MatchID, Payload: upd})
	if err != nil {
		return
	}
	for _, c := range targets {
		if err := c.writeRaw(b); err != nil {
			h.log.Debug("ws write failed", zap.String("match_id", upd.MatchID), zap.Error(err))
		}
	}
}
