package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/wager-ledger/internal/shared/db"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Postgres implementa Ledger sobre a tabela accounts. Em produção recebe o
// *sql.Tx aberto pelo runner de transações.
type Postgres struct{ db db.DBTX }

func NewPostgres(conn db.DBTX) *Postgres { return &Postgres{db: conn} }

func (p *Postgres) Create(ctx context.Context, username string, opening int64) (Account, error) {
	a := Account{Username: username, Balance: opening}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO accounts(username, balance) VALUES($1,$2) RETURNING id, created_at`,
		username, opening).Scan(&a.ID, &a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Account{}, ledgererr.Wrap(ledgererr.KindDuplicateUsername, err, "username %q already taken", username)
	}
	if err != nil {
		return Account{}, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "create account")
	}
	return a, nil
}

const selectAccount = `SELECT id, username, balance, created_at FROM accounts WHERE username=$1`

func (p *Postgres) Get(ctx context.Context, username string) (Account, error) {
	return p.queryOne(ctx, selectAccount, username)
}

func (p *Postgres) Lock(ctx context.Context, username string) (Account, error) {
	return p.queryOne(ctx, selectAccount+` FOR UPDATE`, username)
}

func (p *Postgres) queryOne(ctx context.Context, q, username string) (Account, error) {
	var a Account
	err := p.db.QueryRowContext(ctx, q, username).Scan(&a.ID, &a.Username, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ledgererr.New(ledgererr.KindNotFound, "account %q", username)
	}
	if err != nil {
		return Account{}, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "read account %q", username)
	}
	return a, nil
}

// Adjust aplica delta ao saldo. O predicado do UPDATE e o CHECK da tabela
// garantem balance >= 0 mesmo que o chamador não tenha validado antes.
func (p *Postgres) Adjust(ctx context.Context, accountID int64, delta int64) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id=$2 AND balance + $1 >= 0 RETURNING balance`,
		delta, accountID).Scan(&balance)
	switch {
	case err == nil:
		return balance, nil
	case db.IsCheckViolation(err):
		return 0, ledgererr.Wrap(ledgererr.KindInsufficientFunds, err, "account %d: delta %d", accountID, delta)
	case db.IsOutOfRange(err):
		return 0, ledgererr.Wrap(ledgererr.KindInvalidInput, err, "account %d: delta %d overflows balance", accountID, delta)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "adjust account %d", accountID)
	}

	// nenhuma linha: ou a conta não existe ou o piso barrou o débito
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)`, accountID).Scan(&exists); err != nil {
		return 0, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "adjust account %d", accountID)
	}
	if !exists {
		return 0, ledgererr.New(ledgererr.KindNotFound, "account %d", accountID)
	}
	return 0, ledgererr.New(ledgererr.KindInsufficientFunds, "account %d: delta %d would go below zero", accountID, delta)
}

func (p *Postgres) List(ctx context.Context) ([]Account, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, username, balance, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list accounts")
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Balance, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "list accounts")
	}
	return out, nil
}
