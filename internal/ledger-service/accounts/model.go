package accounts

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// MaxUsernameLen limita o tamanho do username (em runes).
const MaxUsernameLen = 64

type Account struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger guarda contas e saldos. Toda mutação passa por Adjust, que nunca
// deixa o saldo negativo.
type Ledger interface {
	Create(ctx context.Context, username string, opening int64) (Account, error)
	Get(ctx context.Context, username string) (Account, error)
	// Lock lê a conta com lock exclusivo até o fim da transação.
	Lock(ctx context.Context, username string) (Account, error)
	Adjust(ctx context.Context, accountID int64, delta int64) (int64, error)
	List(ctx context.Context) ([]Account, error)
}

// NormalizeUsername remove espaços das pontas e valida o resultado.
func NormalizeUsername(s string) (string, error) {
	u := strings.TrimSpace(s)
	if u == "" {
		return "", ledgererr.New(ledgererr.KindInvalidInput, "username required")
	}
	if utf8.RuneCountInString(u) > MaxUsernameLen {
		return "", ledgererr.New(ledgererr.KindInvalidInput, "username longer than %d characters", MaxUsernameLen)
	}
	return u, nil
}
