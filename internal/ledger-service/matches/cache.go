package matches

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/pkg/contracts/events"
)

// Cached envolve um Store com leitura via Redis (TTL) e publica cada upsert
// no canal Pub/Sub. O Store envolvido continua sendo a fonte de verdade:
// falhas de Redis são logadas e nunca retornadas.
//
// Upsert grava o registro novo no cache (SET) e Get só preenche entradas
// ausentes (SET NX), então uma leitura iniciada antes do upsert nunca
// sobrescreve o valor mais recente.
type Cached struct {
	Store   Store
	Client  *redis.Client
	TTL     time.Duration
	Channel string
	Log     *zap.Logger
}

func NewCached(store Store, c *redis.Client, ttl time.Duration, channel string, log *zap.Logger) *Cached {
	return &Cached{Store: store, Client: c, TTL: ttl, Channel: channel, Log: log}
}

func cacheKey(matchID string) string { return "matches:current:" + matchID }

func (c *Cached) Upsert(ctx context.Context, m Match) error {
	if err := c.Store.Upsert(ctx, m); err != nil {
		return err
	}

	c.writeThrough(ctx, m.ID)

	if c.Channel == "" {
		return nil
	}
	b, err := json.Marshal(events.MatchUpdated{
		MatchID:     m.ID,
		EventID:     m.EventID,
		ScheduledAt: m.ScheduledAt,
		Red:         m.Red,
		Blue:        m.Blue,
		Odds:        events.MatchOdds{Red: m.Odds.Red, Blue: m.Odds.Blue},
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil
	}
	if err := c.Client.Publish(ctx, c.Channel, b).Err(); err != nil {
		c.Log.Warn("match update publish failed", zap.String("match_id", m.ID), zap.Error(err))
	}
	return nil
}

func (c *Cached) Get(ctx context.Context, matchID string) (Match, error) {
	b, err := c.Client.Get(ctx, cacheKey(matchID)).Bytes()
	switch {
	case err == nil:
		var m Match
		if jerr := json.Unmarshal(b, &m); jerr == nil {
			return m, nil
		}
	case !errors.Is(err, redis.Nil):
		c.Log.Warn("match cache read failed", zap.String("match_id", matchID), zap.Error(err))
	}

	m, err := c.Store.Get(ctx, matchID)
	if err != nil {
		return Match{}, err
	}

	if b, err := json.Marshal(m); err == nil {
		if err := c.Client.SetNX(ctx, cacheKey(matchID), b, c.TTL).Err(); err != nil {
			c.Log.Warn("match cache write failed", zap.String("match_id", matchID), zap.Error(err))
		}
	}
	return m, nil
}

// writeThrough relê o registro gravado (com UpdatedAt) e substitui a entrada
// do cache. Sem conseguir gravar, remove a entrada para não servir odds antigas.
func (c *Cached) writeThrough(ctx context.Context, matchID string) {
	key := cacheKey(matchID)

	m, err := c.Store.Get(ctx, matchID)
	if err == nil {
		var b []byte
		if b, err = json.Marshal(m); err == nil {
			if err = c.Client.Set(ctx, key, b, c.TTL).Err(); err == nil {
				return
			}
		}
	}
	c.Log.Warn("match cache write-through failed", zap.String("match_id", matchID), zap.Error(err))

	if err := c.Client.Del(ctx, key).Err(); err != nil {
		c.Log.Warn("match cache invalidate failed", zap.String("match_id", matchID), zap.Error(err))
	}
}

func (c *Cached) List(ctx context.Context) ([]Match, error) {
	return c.Store.List(ctx)
}
