// Package memory implementa o escopo transacional inteiro em memória.
// Cada transação trabalha numa cópia do estado, que só substitui o estado
// publicado se fn terminar sem erro.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/wager-ledger/internal/ledger-service/accounts"
	"github.com/radieske/wager-ledger/internal/ledger-service/store"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

type state struct {
	nextAccountID int64
	accounts      map[int64]accounts.Account
	byUsername    map[string]int64
	wagers        map[string]wagers.Wager
	settlements   []wagers.Settlement
}

func (s *state) clone() *state {
	c := &state{
		nextAccountID: s.nextAccountID,
		accounts:      make(map[int64]accounts.Account, len(s.accounts)),
		byUsername:    make(map[string]int64, len(s.byUsername)),
		wagers:        make(map[string]wagers.Wager, len(s.wagers)),
		settlements:   append([]wagers.Settlement(nil), s.settlements...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.byUsername {
		c.byUsername[k] = v
	}
	for k, v := range s.wagers {
		c.wagers[k] = v
	}
	return c
}

// Store serializa todas as transações com um único mutex.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{
		state: &state{
			nextAccountID: 1,
			accounts:      make(map[int64]accounts.Account),
			byUsername:    make(map[string]int64),
			wagers:        make(map[string]wagers.Wager),
		},
		now: time.Now,
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ledgererr.TransactionFailed(ledgererr.Wrap(ledgererr.KindTransientStoreFailure, err, "begin transaction"))
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return ledgererr.TransactionFailed(err)
	}
	s.state = work
	return nil
}

// Settlements devolve uma cópia do log de auditoria confirmado.
func (s *Store) Settlements() []wagers.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wagers.Settlement(nil), s.state.settlements...)
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Accounts() accounts.Ledger { return ledger{t} }
func (t *tx) Wagers() wagers.Book       { return book{t} }

type ledger struct{ *tx }

func (l ledger) Create(_ context.Context, username string, opening int64) (accounts.Account, error) {
	if _, ok := l.st.byUsername[username]; ok {
		return accounts.Account{}, ledgererr.New(ledgererr.KindDuplicateUsername, "username %q already taken", username)
	}
	if opening < 0 {
		return accounts.Account{}, ledgererr.New(ledgererr.KindInvalidInput, "opening balance %d", opening)
	}
	a := accounts.Account{
		ID:        l.st.nextAccountID,
		Username:  username,
		Balance:   opening,
		CreatedAt: l.now().UTC(),
	}
	l.st.nextAccountID++
	l.st.accounts[a.ID] = a
	l.st.byUsername[username] = a.ID
	return a, nil
}

func (l ledger) Get(_ context.Context, username string) (accounts.Account, error) {
	id, ok := l.st.byUsername[username]
	if !ok {
		return accounts.Account{}, ledgererr.New(ledgererr.KindNotFound, "account %q", username)
	}
	return l.st.accounts[id], nil
}

// Lock equivale a Get: a transação já detém o lock global.
func (l ledger) Lock(ctx context.Context, username string) (accounts.Account, error) {
	return l.Get(ctx, username)
}

func (l ledger) Adjust(_ context.Context, accountID int64, delta int64) (int64, error) {
	a, ok := l.st.accounts[accountID]
	if !ok {
		return 0, ledgererr.New(ledgererr.KindNotFound, "account %d", accountID)
	}
	if delta > 0 && a.Balance > math.MaxInt64-delta {
		return 0, ledgererr.New(ledgererr.KindInvalidInput, "account %d: delta %d overflows balance", accountID, delta)
	}
	if a.Balance+delta < 0 {
		return 0, ledgererr.New(ledgererr.KindInsufficientFunds, "account %d: delta %d would go below zero", accountID, delta)
	}
	a.Balance += delta
	l.st.accounts[accountID] = a
	return a.Balance, nil
}

func (l ledger) List(_ context.Context) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(l.st.accounts))
	for _, a := range l.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type book struct{ *tx }

func (b book) Open(_ context.Context, w wagers.Wager) (string, error) {
	if _, ok := b.st.accounts[w.AccountID]; !ok {
		return "", ledgererr.New(ledgererr.KindNotFound, "account %d", w.AccountID)
	}
	for _, existing := range b.st.wagers {
		if existing.AccountID == w.AccountID && existing.MatchID == w.MatchID {
			return "", ledgererr.New(ledgererr.KindDuplicateWager,
				"account %d already holds a wager on %s", w.AccountID, w.MatchID)
		}
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.PlacedAt.IsZero() {
		w.PlacedAt = b.now().UTC()
	}
	b.st.wagers[w.ID] = w
	return w.ID, nil
}

func (b book) Find(_ context.Context, accountID int64, matchID string) (wagers.Wager, error) {
	for _, w := range b.st.wagers {
		if w.AccountID == accountID && w.MatchID == matchID {
			return w, nil
		}
	}
	return wagers.Wager{}, ledgererr.New(ledgererr.KindNotFound, "no open wager for account %d on %s", accountID, matchID)
}

func (b book) Close(_ context.Context, wagerID string) error {
	if _, ok := b.st.wagers[wagerID]; !ok {
		return ledgererr.New(ledgererr.KindNotFound, "wager %s", wagerID)
	}
	delete(b.st.wagers, wagerID)
	return nil
}

func (b book) ListFor(_ context.Context, accountID int64) ([]wagers.Wager, error) {
	var out []wagers.Wager
	for _, w := range b.st.wagers {
		if w.AccountID == accountID {
			out = append(out, w)
		}
	}
	sortWagers(out, func(i int) wagers.Wager { return out[i] })
	return out, nil
}

func (b book) ListAll(_ context.Context) ([]wagers.Holding, error) {
	out := make([]wagers.Holding, 0, len(b.st.wagers))
	for _, w := range b.st.wagers {
		out = append(out, wagers.Holding{Wager: w, Username: b.st.accounts[w.AccountID].Username})
	}
	sortWagers(out, func(i int) wagers.Wager { return out[i].Wager })
	return out, nil
}

func (b book) RecordSettlement(_ context.Context, s wagers.Settlement) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = b.now().UTC()
	}
	b.st.settlements = append(b.st.settlements, s)
	return nil
}

func sortWagers[T any](xs []T, at func(i int) wagers.Wager) {
	sort.SliceStable(xs, func(i, j int) bool {
		a, b := at(i), at(j)
		if !a.PlacedAt.Equal(b.PlacedAt) {
			return a.PlacedAt.Before(b.PlacedAt)
		}
		return a.ID < b.ID
	})
}
