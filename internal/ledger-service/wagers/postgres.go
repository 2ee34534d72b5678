package wagers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/wager-ledger/internal/shared/db"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

type Postgres struct {
	db  db.DBTX
	now func() time.Time
}

func NewPostgres(conn db.DBTX) *Postgres { return &Postgres{db: conn, now: time.Now} }

// Open grava a aposta. O UNIQUE (account_id, match_id) barra a segunda
// aposta da mesma conta na mesma partida.
func (p *Postgres) Open(ctx context.Context, w Wager) (string, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.PlacedAt.IsZero() {
		w.PlacedAt = p.now().UTC()
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO wagers(id, account_id, match_id, side, amount, odds, placed_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		w.ID, w.AccountID, w.MatchID, string(w.Side), w.Amount, w.Odds, w.PlacedAt)
	if db.IsUniqueViolation(err) {
		return "", ledgererr.Wrap(ledgererr.KindDuplicateWager, err,
			"account %d already holds a wager on %s", w.AccountID, w.MatchID)
	}
	if err != nil {
		return "", ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "open wager")
	}
	return w.ID, nil
}

const selectWager = `SELECT id, account_id, match_id, side, amount, odds, placed_at FROM wagers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(s rowScanner, extra ...any) (Wager, error) {
	var w Wager
	dest := append([]any{&w.ID, &w.AccountID, &w.MatchID, &w.Side, &w.Amount, &w.Odds, &w.PlacedAt}, extra...)
	err := s.Scan(dest...)
	return w, err
}

// Find trava a linha da aposta até o fim da transação.
func (p *Postgres) Find(ctx context.Context, accountID int64, matchID string) (Wager, error) {
	w, err := scanWager(p.db.QueryRowContext(ctx,
		selectWager+` WHERE account_id=$1 AND match_id=$2 FOR UPDATE`, accountID, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return Wager{}, ledgererr.New(ledgererr.KindNotFound, "no open wager for account %d on %s", accountID, matchID)
	}
	if err != nil {
		return Wager{}, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "find wager")
	}
	return w, nil
}

func (p *Postgres) Close(ctx context.Context, wagerID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM wagers WHERE id=$1`, wagerID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "close wager %s", wagerID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "close wager %s", wagerID)
	}
	if n == 0 {
		return ledgererr.New(ledgererr.KindNotFound, "wager %s", wagerID)
	}
	return nil
}

func (p *Postgres) ListFor(ctx context.Context, accountID int64) ([]Wager, error) {
	rows, err := p.db.QueryContext(ctx, selectWager+` WHERE account_id=$1 ORDER BY placed_at, id`, accountID)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list wagers")
	}
	defer rows.Close()

	var out []Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wager: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list wagers")
	}
	return out, nil
}

func (p *Postgres) ListAll(ctx context.Context) ([]Holding, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT w.id, w.account_id, w.match_id, w.side, w.amount, w.odds, w.placed_at, a.username
		FROM wagers w
		JOIN accounts a ON a.id = w.account_id
		ORDER BY w.placed_at, w.id`)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list holdings")
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		var h Holding
		w, err := scanWager(rows, &h.Username)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h.Wager = w
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list holdings")
	}
	return out, nil
}

// RecordSettlement acrescenta a linha de auditoria (append-only).
func (p *Postgres) RecordSettlement(ctx context.Context, s Settlement) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = p.now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wager_settlements
		  (wager_id, account_id, match_id, side, amount, odds, winnings, balance_after, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.WagerID, s.AccountID, s.MatchID, string(s.Side), s.Amount, s.Odds, s.Winnings, s.BalanceAfter, s.SettledAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "record settlement for %s", s.WagerID)
	}
	return nil
}
