package matches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/wager-ledger/internal/shared/db"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Postgres implementa Store sobre a tabela matches.
type Postgres struct {
	DB  db.DBTX
	now func() time.Time
}

func NewPostgres(conn db.DBTX) *Postgres {
	return &Postgres{DB: conn, now: time.Now}
}

// Upsert insere ou sobrescreve horário, escalações e odds de uma partida.
// Um único INSERT ... ON CONFLICT: a linha muda de uma vez só.
func (r *Postgres) Upsert(ctx context.Context, m Match) error {
	if err := m.Validate(); err != nil {
		return err
	}

	const q = `
		INSERT INTO matches
		  (match_id, event_id, scheduled_at, red_teams, blue_teams, red_odds, blue_odds, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (match_id) DO UPDATE SET
		  event_id     = EXCLUDED.event_id,
		  scheduled_at = EXCLUDED.scheduled_at,
		  red_teams    = EXCLUDED.red_teams,
		  blue_teams   = EXCLUDED.blue_teams,
		  red_odds     = EXCLUDED.red_odds,
		  blue_odds    = EXCLUDED.blue_odds,
		  updated_at   = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, q,
		m.ID, m.EventID, m.ScheduledAt.UTC(),
		pq.Array(m.Red), pq.Array(m.Blue),
		m.Odds.Red, m.Odds.Blue,
		r.now().UTC(),
	)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "upsert match %s", m.ID)
	}
	return nil
}

const selectMatch = `
	SELECT match_id, event_id, scheduled_at, red_teams, blue_teams, red_odds, blue_odds, updated_at
	FROM matches`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(s rowScanner) (Match, error) {
	var m Match
	err := s.Scan(&m.ID, &m.EventID, &m.ScheduledAt,
		pq.Array(&m.Red), pq.Array(&m.Blue),
		&m.Odds.Red, &m.Odds.Blue, &m.UpdatedAt)
	return m, err
}

func (r *Postgres) Get(ctx context.Context, matchID string) (Match, error) {
	m, err := scanMatch(r.DB.QueryRowContext(ctx, selectMatch+` WHERE match_id = $1`, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return Match{}, ledgererr.New(ledgererr.KindNotFound, "match %q", matchID)
	}
	if err != nil {
		return Match{}, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "get match %s", matchID)
	}
	return m, nil
}

func (r *Postgres) List(ctx context.Context) ([]Match, error) {
	rows, err := r.DB.QueryContext(ctx, selectMatch+` ORDER BY scheduled_at, match_id`)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list matches")
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list matches")
	}
	return out, nil
}
