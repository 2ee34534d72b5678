package matchsync

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
)

// OddsProvider decide as odds gravadas no snapshot para cada partida.
type OddsProvider interface {
	Odds(ctx context.Context, fm FeedMatch) (matches.Odds, error)
}

// PlaceholderOdds devolve sempre o mesmo par de odds.
type PlaceholderOdds struct {
	Red  decimal.Decimal
	Blue decimal.Decimal
}

func (p PlaceholderOdds) Odds(context.Context, FeedMatch) (matches.Odds, error) {
	return matches.Odds{Red: p.Red, Blue: p.Blue}, nil
}

// FeedOdds usa as odds publicadas pelo feed quando ambas são positivas;
// caso contrário recorre ao Fallback.
type FeedOdds struct {
	Fallback OddsProvider
}

func (f FeedOdds) Odds(ctx context.Context, fm FeedMatch) (matches.Odds, error) {
	if fm.Odds != nil && fm.Odds.Red.IsPositive() && fm.Odds.Blue.IsPositive() {
		return matches.Odds{Red: fm.Odds.Red, Blue: fm.Odds.Blue}, nil
	}
	return f.Fallback.Odds(ctx, fm)
}
