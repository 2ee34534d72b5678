package matchsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger/internal/ledger-service/matches"
)

// fakeFeed serve um FeedEvent mutável via httptest.
type fakeFeed struct {
	mu     sync.Mutex
	event  FeedEvent
	status int
	hits   atomic.Int32
}

func (f *fakeFeed) set(ev FeedEvent) {
	f.mu.Lock()
	f.event = ev
	f.mu.Unlock()
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/v3/event/"+f.event.Key+"/matches" {
		http.NotFound(w, r)
		return
	}
	if f.status != 0 {
		http.Error(w, "upstream down", f.status)
		return
	}
	_ = json.NewEncoder(w).Encode(f.event)
}

func feedMatch(key string, odds *FeedMatchOdds) FeedMatch {
	return FeedMatch{
		Key:      key,
		EventKey: "2024casj",
		Time:     1710522000,
		Alliances: FeedAlliances{
			Red:  FeedAlliance{TeamKeys: []string{"frc254", "frc1678", "frc971"}},
			Blue: FeedAlliance{TeamKeys: []string{"frc604", "frc115", "frc649"}},
		},
		Odds: odds,
	}
}

func placeholder() PlaceholderOdds {
	return PlaceholderOdds{Red: decimal.RequireFromString("1.5"), Blue: decimal.RequireFromString("2.0")}
}

type failingStore struct {
	*matches.Memory
	failID string
}

func (s failingStore) Upsert(ctx context.Context, m matches.Match) error {
	if m.ID == s.failID {
		return errors.New("connection reset")
	}
	return s.Memory.Upsert(ctx, m)
}

func newJob(t *testing.T, feed *fakeFeed, store matches.Store) (*Job, map[string]int) {
	t.Helper()
	srv := httptest.NewServer(feed)
	t.Cleanup(srv.Close)

	errs := map[string]int{}
	var mu sync.Mutex
	return &Job{
		Log:      zap.NewNop(),
		Feed:     NewFeedClient(srv.URL+"/", 2*time.Second),
		Store:    store,
		Odds:     FeedOdds{Fallback: placeholder()},
		EventKey: "2024casj",
		OnError: func(stage string) {
			mu.Lock()
			errs[stage]++
			mu.Unlock()
		},
	}, errs
}

func TestSyncOnceUpsertsEveryMatch(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{
		feedMatch("2024casj_qm1", nil),
		feedMatch("2024casj_qm2", &FeedMatchOdds{Red: decimal.RequireFromString("1.25"), Blue: decimal.RequireFromString("3.1")}),
	}})
	store := matches.NewMemory()
	job, _ := newJob(t, feed, store)

	n, err := job.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m1, err := store.Get(context.Background(), "2024casj_qm1")
	require.NoError(t, err)
	assert.True(t, m1.Odds.Red.Equal(decimal.RequireFromString("1.5")), "placeholder red odds")
	assert.True(t, m1.Odds.Blue.Equal(decimal.RequireFromString("2")), "placeholder blue odds")
	assert.Equal(t, time.Unix(1710522000, 0).UTC(), m1.ScheduledAt)
	assert.Equal(t, []string{"frc254", "frc1678", "frc971"}, m1.Red)

	m2, err := store.Get(context.Background(), "2024casj_qm2")
	require.NoError(t, err)
	assert.True(t, m2.Odds.Blue.Equal(decimal.RequireFromString("3.1")))
}

func TestRepeatedSyncLastWriteWins(t *testing.T) {
	feed := &fakeFeed{}
	store := matches.NewMemory()
	job, _ := newJob(t, feed, store)

	for _, red := range []string{"1.4", "1.6", "1.9"} {
		feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{
			feedMatch("2024casj_qm1", &FeedMatchOdds{Red: decimal.RequireFromString(red), Blue: decimal.RequireFromString("2.2")}),
		}})
		_, err := job.SyncOnce(context.Background())
		require.NoError(t, err)
	}

	got, err := store.Get(context.Background(), "2024casj_qm1")
	require.NoError(t, err)
	assert.True(t, got.Odds.Red.Equal(decimal.RequireFromString("1.9")))

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFeedFailureLeavesSnapshotUntouched(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{feedMatch("2024casj_qm1", nil)}})
	store := matches.NewMemory()
	job, errs := newJob(t, feed, store)

	_, err := job.SyncOnce(context.Background())
	require.NoError(t, err)

	feed.mu.Lock()
	feed.status = http.StatusBadGateway
	feed.mu.Unlock()

	_, err = job.SyncOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, errs["fetch"])

	_, err = store.Get(context.Background(), "2024casj_qm1")
	assert.NoError(t, err)
}

func TestInvalidAndFailingMatchesAreSkipped(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{
		feedMatch("", nil),
		feedMatch("2024casj_qm2", nil),
		feedMatch("2024casj_qm3", nil),
	}})
	store := failingStore{Memory: matches.NewMemory(), failID: "2024casj_qm2"}
	job, errs := newJob(t, feed, store)

	n, err := job.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, errs["validate"])
	assert.Equal(t, 1, errs["upsert"])

	_, err = store.Get(context.Background(), "2024casj_qm3")
	assert.NoError(t, err)
}

func TestNonPositiveProviderOddsRejected(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{feedMatch("2024casj_qm1", nil)}})
	store := matches.NewMemory()
	job, errs := newJob(t, feed, store)
	job.Odds = PlaceholderOdds{Red: decimal.Zero, Blue: decimal.RequireFromString("2.0")}

	n, err := job.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, errs["validate"])
}

func TestFeedOddsFallsBackOnBadValues(t *testing.T) {
	provider := FeedOdds{Fallback: placeholder()}
	got, err := provider.Odds(context.Background(), feedMatch("qm1", &FeedMatchOdds{Red: decimal.RequireFromString("-1"), Blue: decimal.RequireFromString("2.5")}))
	require.NoError(t, err)
	assert.True(t, got.Red.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, got.Blue.Equal(decimal.RequireFromString("2")))
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	feed := &fakeFeed{}
	feed.set(FeedEvent{Key: "2024casj", Matches: []FeedMatch{feedMatch("2024casj_qm1", nil)}})
	store := matches.NewMemory()
	job, _ := newJob(t, feed, store)

	synced := make(chan int, 1)
	job.OnSynced = func(n int) {
		select {
		case synced <- n:
		default:
		}
	}

	s, err := NewScheduler(zap.NewNop(), job, "@every 30s")
	require.NoError(t, err)
	s.Start()

	select {
	case n := <-synced:
		assert.Equal(t, 1, n)
	case <-time.After(3 * time.Second):
		t.Fatal("initial sync did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(zap.NewNop(), &Job{Log: zap.NewNop()}, "every thirty seconds")
	assert.Error(t, err)
}
