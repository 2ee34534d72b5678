package wagers

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Wager é uma aposta aberta. Odds são copiadas do snapshot na colocação
// e nunca mudam depois.
type Wager struct {
	ID        string          `json:"id"`
	AccountID int64           `json:"account_id"`
	MatchID   string          `json:"match_id"`
	Side      matches.Side    `json:"team"`
	Amount    int64           `json:"amount"`
	Odds      decimal.Decimal `json:"odds"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// Holding é uma aposta aberta junto com o username do dono.
type Holding struct {
	Wager
	Username string `json:"username"`
}

// Settlement é o registro de auditoria gravado na liquidação, antes da
// remoção da aposta.
type Settlement struct {
	WagerID      string          `json:"wager_id"`
	AccountID    int64           `json:"account_id"`
	MatchID      string          `json:"match_id"`
	Side         matches.Side    `json:"team"`
	Amount       int64           `json:"amount"`
	Odds         decimal.Decimal `json:"odds"`
	Winnings     int64           `json:"winnings"`
	BalanceAfter int64           `json:"balance"`
	SettledAt    time.Time       `json:"settled_at"`
}

var (
	maxUnits = decimal.NewFromInt(math.MaxInt64)
	minUnits = decimal.NewFromInt(math.MinInt64)
)

// Winnings calcula floor(amount × odds) em decimal exato. Resultados fora
// de int64 são recusados em vez de truncados.
func Winnings(amount int64, odds decimal.Decimal) (int64, error) {
	w := decimal.NewFromInt(amount).Mul(odds).Floor()
	if w.GreaterThan(maxUnits) || w.LessThan(minUnits) {
		return 0, ledgererr.New(ledgererr.KindInvalidInput, "winnings %s x %s overflow", decimal.NewFromInt(amount), odds)
	}
	return w.IntPart(), nil
}

// Book guarda as apostas abertas, no máximo uma por (conta, partida).
type Book interface {
	Open(ctx context.Context, w Wager) (string, error)
	Find(ctx context.Context, accountID int64, matchID string) (Wager, error)
	Close(ctx context.Context, wagerID string) error
	ListFor(ctx context.Context, accountID int64) ([]Wager, error)
	ListAll(ctx context.Context) ([]Holding, error)
	RecordSettlement(ctx context.Context, s Settlement) error
}
