package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/accounts"
	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
	"github.com/radieske/wager-ledger/internal/ledger-service/store"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/pkg/contracts/events"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// PlaceWager debita o valor e registra a aposta com a odd vigente do lado
// escolhido, tudo na mesma transação. O Holding traz o username gravado na conta.
func (e *Engine) PlaceWager(ctx context.Context, req PlaceRequest) (h wagers.Holding, err error) {
	defer func() { e.observe("place_wager", err) }()

	username, side, err := validatePlace(req)
	if err != nil {
		return wagers.Holding{}, err
	}
	matchID := strings.TrimSpace(req.MatchID)

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	var (
		w       wagers.Wager
		balance int64
	)
	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.Accounts().Lock(ctx, username)
		if err != nil {
			return err
		}
		if req.Amount > acc.Balance {
			return ledgererr.New(ledgererr.KindInsufficientFunds,
				"balance %d, amount %d", acc.Balance, req.Amount)
		}
		username = acc.Username

		m, err := e.Matches.Get(ctx, matchID)
		if err != nil {
			return err
		}

		if balance, err = tx.Accounts().Adjust(ctx, acc.ID, -req.Amount); err != nil {
			return err
		}

		w = wagers.Wager{
			AccountID: acc.ID,
			MatchID:   m.ID,
			Side:      side,
			Amount:    req.Amount,
			Odds:      m.Odds.For(side),
			PlacedAt:  e.now().UTC(),
		}
		w.ID, err = tx.Wagers().Open(ctx, w)
		return err
	})
	if err != nil {
		e.logFailure("place_wager", err,
			zap.String("username", username), zap.String("match_id", matchID), zap.Int64("amount", req.Amount))
		return wagers.Holding{}, err
	}

	e.Log.Info("wager placed",
		zap.String("wager_id", w.ID),
		zap.String("username", username),
		zap.String("match_id", w.MatchID),
		zap.String("side", string(w.Side)),
		zap.Int64("amount", w.Amount),
		zap.String("odds", w.Odds.String()),
		zap.Int64("balance", balance),
	)

	if e.Publisher != nil {
		e.publish(ctx, "wager_placed", func(ctx context.Context) error {
			return e.Publisher.WagerPlaced(ctx, events.WagerPlaced{
				WagerID:   w.ID,
				AccountID: w.AccountID,
				Username:  username,
				MatchID:   w.MatchID,
				Side:      string(w.Side),
				Amount:    w.Amount,
				Odds:      w.Odds,
				Balance:   balance,
				TsUnixMs:  w.PlacedAt.UnixMilli(),
			})
		})
	}
	return wagers.Holding{Wager: w, Username: username}, nil
}

func validatePlace(req PlaceRequest) (string, matches.Side, error) {
	if req.Amount <= 0 {
		return "", "", ledgererr.New(ledgererr.KindInvalidInput, "amount must be positive, got %d", req.Amount)
	}
	if strings.TrimSpace(req.MatchID) == "" {
		return "", "", ledgererr.New(ledgererr.KindInvalidInput, "match id required")
	}
	side, err := matches.ParseSide(req.Side)
	if err != nil {
		return "", "", err
	}
	username, err := accounts.NormalizeUsername(req.Username)
	if err != nil {
		return "", "", err
	}
	return username, side, nil
}

// SettleWager paga floor(amount × odds capturadas), grava o registro de
// auditoria e remove a aposta. O engine não decide vitória ou derrota:
// toda liquidação paga.
func (e *Engine) SettleWager(ctx context.Context, username, matchID string) (s wagers.Settlement, err error) {
	defer func() { e.observe("settle_wager", err) }()

	username, err = accounts.NormalizeUsername(username)
	if err != nil {
		return wagers.Settlement{}, err
	}
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return wagers.Settlement{}, ledgererr.New(ledgererr.KindInvalidInput, "match id required")
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		acc, err := tx.Accounts().Lock(ctx, username)
		if err != nil {
			return err
		}
		w, err := tx.Wagers().Find(ctx, acc.ID, matchID)
		if err != nil {
			return err
		}

		winnings, err := wagers.Winnings(w.Amount, w.Odds)
		if err != nil {
			return err
		}

		s = wagers.Settlement{
			WagerID:   w.ID,
			AccountID: acc.ID,
			MatchID:   w.MatchID,
			Side:      w.Side,
			Amount:    w.Amount,
			Odds:      w.Odds,
			Winnings:  winnings,
			SettledAt: e.now().UTC(),
		}
		if s.BalanceAfter, err = tx.Accounts().Adjust(ctx, acc.ID, s.Winnings); err != nil {
			return err
		}
		if err := tx.Wagers().RecordSettlement(ctx, s); err != nil {
			return err
		}
		return tx.Wagers().Close(ctx, w.ID)
	})
	if err != nil {
		e.logFailure("settle_wager", err, zap.String("username", username), zap.String("match_id", matchID))
		return wagers.Settlement{}, err
	}

	e.Log.Info("wager settled",
		zap.String("wager_id", s.WagerID),
		zap.String("username", username),
		zap.String("match_id", s.MatchID),
		zap.Int64("winnings", s.Winnings),
		zap.Int64("balance", s.BalanceAfter),
	)
	if e.OnPayout != nil {
		e.OnPayout(s.Winnings)
	}

	if e.Publisher != nil {
		e.publish(ctx, "wager_settled", func(ctx context.Context) error {
			return e.Publisher.WagerSettled(ctx, events.WagerSettled{
				WagerID:   s.WagerID,
				AccountID: s.AccountID,
				Username:  username,
				MatchID:   s.MatchID,
				Side:      string(s.Side),
				Amount:    s.Amount,
				Odds:      s.Odds,
				Winnings:  s.Winnings,
				Balance:   s.BalanceAfter,
				TsUnixMs:  s.SettledAt.UnixMilli(),
			})
		})
	}
	return s, nil
}

// publish roda depois do commit; erro só gera log e métrica.
func (e *Engine) publish(ctx context.Context, event string, fn func(ctx context.Context) error) {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := fn(pctx); err != nil {
		e.Log.Warn("event publish failed", zap.String("event", event), zap.Error(err))
		if e.OnPublishError != nil {
			e.OnPublishError(event)
		}
	}
}
