// Package engine concentra as regras de saldo e apostas: criação de conta,
// colocação e liquidação de apostas, e as consultas expostas pela API.
//
// Toda operação roda numa única transação do store.Runner, com prazo
// próprio (Config.OpTimeout) e desacoplada do cancelamento do chamador,
// de modo que um commit em andamento termina mesmo durante o shutdown.
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

const (
	DefaultOpTimeout      = 5 * time.Second
	DefaultOpeningBalance = int64(1000)
)

type Config struct {
	OpTimeout      time.Duration
	OpeningBalance int64
}

// Publisher recebe os eventos após o commit. Falhas não desfazem nada.
type Publisher interface {
	WagerPlaced(ctx context.Context, e events.WagerPlaced) error
	WagerSettled(ctx context.Context, e events.WagerSettled) error
}

type Engine struct {
	Log       *zap.Logger
	Runner    store.Runner
	Matches   matches.Reader
	Publisher Publisher

	cfg Config
	now func() time.Time

	// Callbacks de métricas (opcionais)
	OnOp           func(op string, outcome string)
	OnPayout       func(winnings int64)
	OnPublishError func(event string)
}

func New(log *zap.Logger, runner store.Runner, m matches.Reader, cfg Config) *Engine {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	if cfg.OpeningBalance <= 0 {
		cfg.OpeningBalance = DefaultOpeningBalance
	}
	return &Engine{Log: log, Runner: runner, Matches: m, cfg: cfg, now: time.Now}
}

// PlaceRequest não tem campo de odds: a odd vem sempre do snapshot.
type PlaceRequest struct {
	Username string
	MatchID  string
	Side     string
	Amount   int64
}

// bounded devolve um contexto com prazo próprio que ignora o cancelamento
// do chamador mas preserva seus valores.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OpTimeout)
}

func (e *Engine) observe(op string, err error) {
	if e.OnOp == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(ledgererr.KindOf(err)))
	}
	e.OnOp(op, outcome)
}

func (e *Engine) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch ledgererr.KindOf(err) {
	case ledgererr.KindInternal, ledgererr.KindTransientStoreFailure, ledgererr.KindTransactionFailed:
		e.Log.Error("ledger operation failed", fields...)
	default:
		e.Log.Debug("ledger operation rejected", fields...)
	}
}

// CreateAccount cria a conta com o saldo inicial configurado.
func (e *Engine) CreateAccount(ctx context.Context, username string) (acc accounts.Account, err error) {
	defer func() { e.observe("create_account", err) }()

	username, err = accounts.NormalizeUsername(username)
	if err != nil {
		return accounts.Account{}, err
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		acc, txErr = tx.Accounts().Create(ctx, username, e.cfg.OpeningBalance)
		return txErr
	})
	if err != nil {
		e.logFailure("create_account", err, zap.String("username", username))
		return accounts.Account{}, err
	}

	e.Log.Info("account created", zap.String("username", username), zap.Int64("balance", acc.Balance))
	return acc, nil
}

// Balance devolve a conta como está gravada, com o saldo atual.
func (e *Engine) Balance(ctx context.Context, username string) (acc accounts.Account, err error) {
	defer func() { e.observe("get_balance", err) }()

	username, err = accounts.NormalizeUsername(username)
	if err != nil {
		return accounts.Account{}, err
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		acc, txErr = tx.Accounts().Get(ctx, username)
		return txErr
	})
	if err != nil {
		e.logFailure("get_balance", err, zap.String("username", username))
		return accounts.Account{}, err
	}
	return acc, nil
}

func (e *Engine) ListAccounts(ctx context.Context) (out []accounts.Account, err error) {
	defer func() { e.observe("list_accounts", err) }()

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var txErr error
		out, txErr = tx.Accounts().List(ctx)
		return txErr
	})
	if err != nil {
		e.logFailure("list_accounts", err)
		return nil, err
	}
	return out, nil
}

// ListWagers lista as apostas abertas; username vazio lista todas.
func (e *Engine) ListWagers(ctx context.Context, username string) (out []wagers.Holding, err error) {
	defer func() { e.observe("list_wagers", err) }()

	if username != "" {
		if username, err = accounts.NormalizeUsername(username); err != nil {
			return nil, err
		}
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	err = e.Runner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if username == "" {
			var txErr error
			out, txErr = tx.Wagers().ListAll(ctx)
			return txErr
		}

		a, txErr := tx.Accounts().Get(ctx, username)
		if txErr != nil {
			return txErr
		}
		ws, txErr := tx.Wagers().ListFor(ctx, a.ID)
		if txErr != nil {
			return txErr
		}
		out = make([]wagers.Holding, 0, len(ws))
		for _, w := range ws {
			out = append(out, wagers.Holding{Wager: w, Username: a.Username})
		}
		return nil
	})
	if err != nil {
		e.logFailure("list_wagers", err, zap.String("username", username))
		return nil, err
	}
	return out, nil
}

// UpcomingMatches lê o snapshot de partidas ordenado por horário.
func (e *Engine) UpcomingMatches(ctx context.Context) (out []matches.Match, err error) {
	defer func() { e.observe("list_matches", err) }()

	ctx, cancel := e.bounded(ctx)
	defer cancel()

	out, err = e.Matches.List(ctx)
	if err != nil {
		e.logFailure("list_matches", err)
		return nil, err
	}
	return out, nil
}
