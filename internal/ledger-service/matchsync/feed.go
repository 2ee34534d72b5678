package matchsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeedMatch é uma partida como vem do feed externo.
type FeedMatch struct {
	Key       string         `json:"key"`
	EventKey  string         `json:"event_key"`
	Time      int64          `json:"time"` // unix, segundos
	Alliances FeedAlliances  `json:"alliances"`
	Odds      *FeedMatchOdds `json:"odds,omitempty"`
}

type FeedAlliances struct {
	Red  FeedAlliance `json:"red"`
	Blue FeedAlliance `json:"blue"`
}

type FeedAlliance struct {
	TeamKeys []string `json:"team_keys"`
}

type FeedMatchOdds struct {
	Red  decimal.Decimal `json:"red"`
	Blue decimal.Decimal `json:"blue"`
}

// FeedEvent é a resposta de GET /v3/event/{key}/matches.
type FeedEvent struct {
	Key     string      `json:"key"`
	Matches []FeedMatch `json:"matches"`
}

// Source busca as partidas de um evento.
type Source interface {
	FetchEvent(ctx context.Context, eventKey string) (FeedEvent, error)
}

// FeedClient consulta o feed de partidas via HTTP.
type FeedClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewFeedClient(baseURL string, timeout time.Duration) *FeedClient {
	return &FeedClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *FeedClient) FetchEvent(ctx context.Context, eventKey string) (FeedEvent, error) {
	endpoint := fmt.Sprintf("%s/v3/event/%s/matches", c.BaseURL, url.PathEscape(eventKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FeedEvent{}, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return FeedEvent{}, fmt.Errorf("fetch event %s: %w", eventKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return FeedEvent{}, fmt.Errorf("fetch event %s: status %d: %s", eventKey, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ev FeedEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return FeedEvent{}, fmt.Errorf("decode event %s: %w", eventKey, err)
	}
	return ev, nil
}
