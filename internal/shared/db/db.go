package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// DBTX é satisfeito tanto por *sql.DB quanto por *sql.Tx, permitindo que os
// repositórios rodem dentro ou fora de uma transação.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate aplica o schema embutido. Todas as instruções são idempotentes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SQLSTATEs tratados pelos repositórios
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsUniqueViolation indica violação de UNIQUE/PRIMARY KEY.
func IsUniqueViolation(err error) bool { return pqCode(err) == codeUniqueViolation }

// IsCheckViolation indica violação de CHECK (ex.: balance >= 0).
func IsCheckViolation(err error) bool { return pqCode(err) == codeCheckViolation }

// IsOutOfRange indica estouro de tipo numérico (ex.: BIGINT).
func IsOutOfRange(err error) bool { return pqCode(err) == codeNumericOutOfRange }

// IsRetryable indica conflito de serialização ou deadlock; a transação
// inteira pode ser repetida.
func IsRetryable(err error) bool {
	switch pqCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
