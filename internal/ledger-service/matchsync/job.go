package matchsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
)

// Job copia as partidas de um evento do feed para o snapshot.
type Job struct {
	Log           *zap.Logger
	Feed          Source
	Store         matches.Store
	Odds          OddsProvider
	EventKey      string
	UpsertTimeout time.Duration

	// Callbacks de métricas (opcionais)
	OnSynced func(upserted int)
	OnError  func(stage string)
}

func (j *Job) fail(stage string) {
	if j.OnError != nil {
		j.OnError(stage)
	}
}

// SyncOnce faz um ciclo completo. Só devolve erro quando o feed falha;
// partidas inválidas ou upserts com erro são logados e pulados, e o
// próximo ciclo tenta de novo.
func (j *Job) SyncOnce(ctx context.Context) (int, error) {
	ev, err := j.Feed.FetchEvent(ctx, j.EventKey)
	if err != nil {
		j.fail("fetch")
		j.Log.Warn("match feed fetch failed", zap.String("event_key", j.EventKey), zap.Error(err))
		return 0, err
	}

	upserted := 0
	for _, fm := range ev.Matches {
		if ctx.Err() != nil {
			break
		}

		m, err := j.toMatch(ctx, fm)
		if err != nil {
			j.fail("validate")
			j.Log.Warn("skipping feed match", zap.String("match_id", fm.Key), zap.Error(err))
			continue
		}

		if err := j.upsert(ctx, m); err != nil {
			j.fail("upsert")
			j.Log.Error("match upsert failed", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		upserted++
	}

	if j.OnSynced != nil {
		j.OnSynced(upserted)
	}
	j.Log.Debug("match sync cycle done",
		zap.String("event_key", j.EventKey),
		zap.Int("received", len(ev.Matches)),
		zap.Int("upserted", upserted))
	return upserted, nil
}

func (j *Job) toMatch(ctx context.Context, fm FeedMatch) (matches.Match, error) {
	odds, err := j.Odds.Odds(ctx, fm)
	if err != nil {
		return matches.Match{}, err
	}
	eventID := fm.EventKey
	if eventID == "" {
		eventID = j.EventKey
	}
	m := matches.Match{
		ID:          fm.Key,
		EventID:     eventID,
		ScheduledAt: time.Unix(fm.Time, 0).UTC(),
		Red:         fm.Alliances.Red.TeamKeys,
		Blue:        fm.Alliances.Blue.TeamKeys,
		Odds:        odds,
	}
	return m, m.Validate()
}

// upsert roda desacoplado do cancelamento do ciclo para que um upsert em
// andamento termine durante o shutdown.
func (j *Job) upsert(ctx context.Context, m matches.Match) error {
	timeout := j.UpsertTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return j.Store.Upsert(uctx, m)
}
