package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
	"github.com/radieske/wager-ledger/internal/ledger-service/store"
	"github.com/radieske/wager-ledger/internal/ledger-service/store/memory"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
	"github.com/radieske/wager-ledger/pkg/contracts/events"
	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) WagerPlaced(ctx context.Context, e events.WagerPlaced) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockPublisher) WagerSettled(ctx context.Context, e events.WagerSettled) error {
	return m.Called(ctx, e).Error(0)
}

// failingOpenRunner faz Wagers().Open falhar depois do débito já aplicado.
type failingOpenRunner struct{ inner *memory.Store }

type failingOpenTx struct{ store.Tx }
type failingOpenBook struct{ wagers.Book }

func (r failingOpenRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.inner.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingOpenTx{tx})
	})
}

func (t failingOpenTx) Wagers() wagers.Book { return failingOpenBook{t.Tx.Wagers()} }

func (failingOpenBook) Open(context.Context, wagers.Wager) (string, error) {
	return "", ledgererr.New(ledgererr.KindTransientStoreFailure, "disk full")
}

type EngineTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	matches *matches.Memory
	engine  *Engine
	ops     map[string]int
	opsMu   sync.Mutex
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.matches = matches.NewMemory()
	s.engine = New(zap.NewNop(), s.store, s.matches, Config{})
	s.ops = map[string]int{}
	s.engine.OnOp = func(op, outcome string) {
		s.opsMu.Lock()
		s.ops[op+":"+outcome]++
		s.opsMu.Unlock()
	}

	s.upsertMatch("2024casj_qm1", "1.5", "2.0")
}

func (s *EngineTestSuite) upsertMatch(id, red, blue string) {
	s.Require().NoError(s.matches.Upsert(s.ctx, matches.Match{
		ID:          id,
		EventID:     "2024casj",
		ScheduledAt: time.Date(2024, 3, 15, 17, 0, 0, 0, time.UTC),
		Red:         []string{"frc254", "frc1678", "frc971"},
		Blue:        []string{"frc604", "frc115", "frc649"},
		Odds:        matches.Odds{Red: decimal.RequireFromString(red), Blue: decimal.RequireFromString(blue)},
	}))
}

func (s *EngineTestSuite) balance(username string) int64 {
	acc, err := s.engine.Balance(s.ctx, username)
	s.Require().NoError(err)
	return acc.Balance
}

func (s *EngineTestSuite) TestAliceScenario() {
	acc, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(1000), acc.Balance)

	w, err := s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 200})
	s.Require().NoError(err)
	s.NotEmpty(w.ID)
	s.True(w.Odds.Equal(decimal.RequireFromString("1.5")))
	s.Equal(int64(800), s.balance("alice"))

	held, err := s.engine.ListWagers(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(held, 1)
	s.Equal("alice", held[0].Username)
	s.Equal(int64(200), held[0].Amount)

	st, err := s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.Require().NoError(err)
	s.Equal(int64(300), st.Winnings)
	s.Equal(int64(1100), st.BalanceAfter)
	s.Equal(int64(1100), s.balance("alice"))

	held, err = s.engine.ListWagers(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(held)

	audit := s.store.Settlements()
	s.Require().Len(audit, 1)
	s.Equal(w.ID, audit[0].WagerID)
	s.Equal(int64(1100), audit[0].BalanceAfter)
}

func (s *EngineTestSuite) TestResultsCarryStoredUsername() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	held, err := s.engine.PlaceWager(s.ctx, PlaceRequest{Username: " alice  ", MatchID: "2024casj_qm1", Side: "red", Amount: 100})
	s.Require().NoError(err)
	s.Equal("alice", held.Username)

	acc, err := s.engine.Balance(s.ctx, "\talice ")
	s.Require().NoError(err)
	s.Equal("alice", acc.Username)
	s.Equal(int64(900), acc.Balance)
}

func (s *EngineTestSuite) TestDuplicateUsername() {
	_, err := s.engine.CreateAccount(s.ctx, "bob")
	s.Require().NoError(err)

	_, err = s.engine.CreateAccount(s.ctx, " bob ")
	s.ErrorIs(err, ledgererr.ErrDuplicateUsername)

	all, err := s.engine.ListAccounts(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal(1, s.ops["create_account:duplicate_username"])
}

func (s *EngineTestSuite) TestCreateAccountValidation() {
	_, err := s.engine.CreateAccount(s.ctx, "   ")
	s.ErrorIs(err, ledgererr.ErrInvalidInput)
}

func (s *EngineTestSuite) TestBalanceUnknownAccount() {
	_, err := s.engine.Balance(s.ctx, "ghost")
	s.ErrorIs(err, ledgererr.ErrNotFound)
	s.Equal(ledgererr.KindNotFound, ledgererr.KindOf(err))
}

func (s *EngineTestSuite) TestPlaceValidation() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	testCases := []struct {
		name string
		req  PlaceRequest
		kind ledgererr.Kind
	}{
		{name: "zero amount", req: PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 0}, kind: ledgererr.KindInvalidInput},
		{name: "negative amount", req: PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: -5}, kind: ledgererr.KindInvalidInput},
		{name: "bad side", req: PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "green", Amount: 5}, kind: ledgererr.KindInvalidInput},
		{name: "no match id", req: PlaceRequest{Username: "alice", Side: "red", Amount: 5}, kind: ledgererr.KindInvalidInput},
		{name: "no username", req: PlaceRequest{MatchID: "2024casj_qm1", Side: "red", Amount: 5}, kind: ledgererr.KindInvalidInput},
		{name: "unknown account", req: PlaceRequest{Username: "ghost", MatchID: "2024casj_qm1", Side: "red", Amount: 5}, kind: ledgererr.KindNotFound},
		{name: "unknown match", req: PlaceRequest{Username: "alice", MatchID: "2024casj_qm99", Side: "red", Amount: 5}, kind: ledgererr.KindNotFound},
		{name: "over balance", req: PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 1001}, kind: ledgererr.KindInsufficientFunds},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.engine.PlaceWager(s.ctx, tc.req)
			s.Equal(tc.kind, ledgererr.KindOf(err))
			s.Equal(int64(1000), s.balance("alice"))
		})
	}

	held, err := s.engine.ListWagers(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(held)
}

func (s *EngineTestSuite) TestInsufficientFundsBeforeMatchLookup() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "missing", Side: "red", Amount: 5000})
	s.ErrorIs(err, ledgererr.ErrInsufficientFunds)
}

func (s *EngineTestSuite) TestPlaceWholeBalance() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "blue", Amount: 1000})
	s.Require().NoError(err)
	s.Equal(int64(0), s.balance("alice"))
}

func (s *EngineTestSuite) TestSecondWagerOnSameMatchRejected() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 100})
	s.Require().NoError(err)

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "blue", Amount: 100})
	s.ErrorIs(err, ledgererr.ErrDuplicateWager)
	s.Equal(int64(900), s.balance("alice"))
}

func (s *EngineTestSuite) TestCapturedOddsSurviveResync() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "blue", Amount: 100})
	s.Require().NoError(err)

	s.upsertMatch("2024casj_qm1", "3.0", "5.0")

	st, err := s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.Require().NoError(err)
	s.Equal(int64(200), st.Winnings)
	s.Equal(int64(1100), st.BalanceAfter)
}

func (s *EngineTestSuite) TestSettleWithoutWager() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	_, err = s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.ErrorIs(err, ledgererr.ErrNotFound)

	_, err = s.engine.SettleWager(s.ctx, "ghost", "2024casj_qm1")
	s.ErrorIs(err, ledgererr.ErrNotFound)
	s.Empty(s.store.Settlements())
}

func (s *EngineTestSuite) TestSettleTwiceIsNotFound() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)
	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 10})
	s.Require().NoError(err)

	_, err = s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.Require().NoError(err)
	_, err = s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.ErrorIs(err, ledgererr.ErrNotFound)
	s.Equal(int64(1005), s.balance("alice"))
}

func (s *EngineTestSuite) TestFailedOpenRollsBackDebit() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	faulty := New(zap.NewNop(), failingOpenRunner{inner: s.store}, s.matches, Config{})
	_, err = faulty.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 300})
	s.ErrorIs(err, ledgererr.ErrTransactionFailed)
	s.ErrorIs(err, ledgererr.ErrTransientStoreFailure)

	s.Equal(int64(1000), s.balance("alice"))
	held, err := s.engine.ListWagers(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(held)
}

func (s *EngineTestSuite) TestConcurrentPlacementsOverBalance() {
	_, err := s.engine.CreateAccount(s.ctx, "carol")
	s.Require().NoError(err)
	s.upsertMatch("2024casj_qm2", "1.5", "2.0")

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int32
	for _, matchID := range []string{"2024casj_qm1", "2024casj_qm2"} {
		wg.Add(1)
		go func(matchID string) {
			defer wg.Done()
			_, err := s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "carol", MatchID: matchID, Side: "red", Amount: 600})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ledgererr.ErrInsufficientFunds):
				insufficient.Add(1)
			}
		}(matchID)
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(1), insufficient.Load())
	s.Equal(int64(400), s.balance("carol"))
}

func (s *EngineTestSuite) TestRandomConcurrentTrafficKeepsBalancesNonNegative() {
	users := []string{"u1", "u2", "u3"}
	for _, u := range users {
		_, err := s.engine.CreateAccount(s.ctx, u)
		s.Require().NoError(err)
	}
	matchIDs := []string{"2024casj_qm1", "2024casj_qm2", "2024casj_qm3", "2024casj_qm4"}
	for _, id := range matchIDs[1:] {
		s.upsertMatch(id, "1.2", "3.5")
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				u := users[rnd.Intn(len(users))]
				m := matchIDs[rnd.Intn(len(matchIDs))]
				if rnd.Intn(2) == 0 {
					side := "red"
					if rnd.Intn(2) == 0 {
						side = "blue"
					}
					_, _ = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: u, MatchID: m, Side: side, Amount: int64(rnd.Intn(700) + 1)})
				} else {
					_, _ = s.engine.SettleWager(s.ctx, u, m)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	all, err := s.engine.ListAccounts(s.ctx)
	s.Require().NoError(err)
	for _, a := range all {
		s.GreaterOrEqual(a.Balance, int64(0), a.Username)
	}
}

func (s *EngineTestSuite) TestListWagersAllAccounts() {
	for _, u := range []string{"alice", "bob"} {
		_, err := s.engine.CreateAccount(s.ctx, u)
		s.Require().NoError(err)
		_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: u, MatchID: "2024casj_qm1", Side: "red", Amount: 50})
		s.Require().NoError(err)
	}

	held, err := s.engine.ListWagers(s.ctx, "")
	s.Require().NoError(err)
	s.Len(held, 2)

	_, err = s.engine.ListWagers(s.ctx, "ghost")
	s.ErrorIs(err, ledgererr.ErrNotFound)
}

func (s *EngineTestSuite) TestUpcomingMatches() {
	s.upsertMatch("2024casj_qm0", "1.1", "1.9")

	got, err := s.engine.UpcomingMatches(s.ctx)
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *EngineTestSuite) TestEventsPublishedAfterCommit() {
	pub := new(mockPublisher)
	s.engine.Publisher = pub
	payouts := int64(0)
	s.engine.OnPayout = func(w int64) { payouts += w }

	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	pub.On("WagerPlaced", mock.Anything, mock.MatchedBy(func(e events.WagerPlaced) bool {
		return e.Username == "alice" && e.Amount == 200 && e.Balance == 800 && e.Side == "red"
	})).Return(nil).Once()
	pub.On("WagerSettled", mock.Anything, mock.MatchedBy(func(e events.WagerSettled) bool {
		return e.Winnings == 300 && e.Balance == 1100
	})).Return(errors.New("broker unavailable")).Once()

	publishErrors := 0
	s.engine.OnPublishError = func(string) { publishErrors++ }

	_, err = s.engine.PlaceWager(s.ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 200})
	s.Require().NoError(err)
	_, err = s.engine.SettleWager(s.ctx, "alice", "2024casj_qm1")
	s.Require().NoError(err, "publish failures never undo a committed settlement")

	pub.AssertExpectations(s.T())
	s.Equal(1, publishErrors)
	s.Equal(int64(300), payouts)
	s.Equal(int64(1100), s.balance("alice"))
}

func (s *EngineTestSuite) TestCallerCancellationDoesNotAbortOperation() {
	_, err := s.engine.CreateAccount(s.ctx, "alice")
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err = s.engine.PlaceWager(ctx, PlaceRequest{Username: "alice", MatchID: "2024casj_qm1", Side: "red", Amount: 100})
	s.Require().NoError(err)
	s.Equal(int64(900), s.balance("alice"))
}

func (s *EngineTestSuite) TestDefaults() {
	e := New(zap.NewNop(), s.store, s.matches, Config{})
	s.Equal(DefaultOpTimeout, e.cfg.OpTimeout)
	s.Equal(DefaultOpeningBalance, e.cfg.OpeningBalance)
}
