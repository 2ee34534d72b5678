package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/accounts"
	"github.com/radieske/wager-ledger/internal/ledger-service/store"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/internal/shared/db"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// DefaultMaxAttempts limita as repetições após conflito de serialização.
const DefaultMaxAttempts = 3

// Runner abre transações SERIALIZABLE no Postgres e repete a unidade de
// trabalho inteira quando o banco aborta por conflito (40001) ou deadlock.
type Runner struct {
	DB          *sql.DB
	MaxAttempts int
	Log         *zap.Logger

	// OnRetry é chamado a cada nova tentativa (métricas).
	OnRetry func()
}

func NewRunner(conn *sql.DB, log *zap.Logger) *Runner {
	return &Runner{DB: conn, MaxAttempts: DefaultMaxAttempts, Log: log}
}

type tx struct {
	accounts *accounts.Postgres
	wagers   *wagers.Postgres
}

func (t tx) Accounts() accounts.Ledger { return t.accounts }
func (t tx) Wagers() wagers.Book       { return t.wagers }

func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !db.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			r.Log.Debug("retrying serializable transaction", zap.Int("attempt", attempt), zap.Error(err))
			if r.OnRetry != nil {
				r.OnRetry()
			}
		}
	}
	if db.IsRetryable(err) && ctx.Err() == nil {
		// tentativas esgotadas: o Kind é TRANSACTION_FAILED, não a falha transitória do driver
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return ledgererr.Wrap(ledgererr.KindTransactionFailed, pqErr, "serialization retries exhausted after %d attempts", attempts)
		}
	}
	return ledgererr.TransactionFailed(err)
}

func (r *Runner) runOnce(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "begin transaction")
	}
	defer func() {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.Log.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, tx{accounts: accounts.NewPostgres(sqlTx), wagers: wagers.NewPostgres(sqlTx)}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "commit transaction")
	}
	return nil
}
