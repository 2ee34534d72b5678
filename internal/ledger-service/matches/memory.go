package matches

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Memory implementa Store em memória (testes e execução local sem Postgres).
type Memory struct {
	mu      sync.RWMutex
	matches map[string]Match
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{matches: make(map[string]Match), now: time.Now}
}

// Upsert substitui o registro inteiro sob lock; leitores veem o estado
// anterior ou o novo, nunca um registro parcial.
func (s *Memory) Upsert(_ context.Context, m Match) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m = m.clone()
	m.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
	return nil
}

func (s *Memory) Get(_ context.Context, matchID string) (Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return Match{}, ledgererr.New(ledgererr.KindNotFound, "match %q", matchID)
	}
	return m.clone(), nil
}

func (s *Memory) List(_ context.Context) ([]Match, error) {
	s.mu.RLock()
	out := make([]Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
