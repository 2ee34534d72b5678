package feed

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-ledger/internal/ledger-service/matchsync"
)

// Pool fixo de equipes usado para montar as alianças simuladas
var teamPool = []string{
	"frc254", "frc1678", "frc971", "frc604", "frc1323", "frc2910",
	"frc4414", "frc5940", "frc649", "frc8033", "frc100", "frc115",
	"frc199", "frc253", "frc670", "frc840", "frc1700", "frc2135",
}

// Catalog guarda as partidas de um evento simulado e faz as odds variarem
// a cada Tick, como um feed real faria entre uma consulta e outra.
type Catalog struct {
	mu      sync.RWMutex
	event   string
	matches []matchsync.FeedMatch
	rnd     *rand.Rand
}

// NewCatalog gera n partidas de qualificação espaçadas por interval a partir de start.
func NewCatalog(eventKey string, n int, start time.Time, interval time.Duration, seed int64) *Catalog {
	c := &Catalog{event: eventKey, rnd: rand.New(rand.NewSource(seed))}
	for i := 0; i < n; i++ {
		c.matches = append(c.matches, matchsync.FeedMatch{
			Key:      fmt.Sprintf("%s_qm%d", eventKey, i+1),
			EventKey: eventKey,
			Time:     start.Add(time.Duration(i) * interval).Unix(),
			Alliances: matchsync.FeedAlliances{
				Red:  matchsync.FeedAlliance{TeamKeys: c.pickTeams(3)},
				Blue: matchsync.FeedAlliance{TeamKeys: c.pickTeams(3)},
			},
		})
	}
	c.Tick()
	return c
}

func (c *Catalog) pickTeams(n int) []string {
	idx := c.rnd.Perm(len(teamPool))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = teamPool[j]
	}
	return out
}

// gera odd aleatória entre min e max com duas casas
func (c *Catalog) rndOdd(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(c.rnd.Float64()*(max-min) + min).Round(2)
}

// Tick recalcula as odds de todas as partidas.
func (c *Catalog) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.matches {
		c.matches[i].Odds = &matchsync.FeedMatchOdds{
			Red:  c.rndOdd(1.40, 3.50),
			Blue: c.rndOdd(1.40, 3.50),
		}
	}
}

// Event devolve uma cópia do evento, ou false se a chave não for a simulada.
func (c *Catalog) Event(key string) (matchsync.FeedEvent, bool) {
	if key != c.event {
		return matchsync.FeedEvent{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]matchsync.FeedMatch, len(c.matches))
	for i, m := range c.matches {
		odds := *m.Odds
		m.Odds = &odds
		m.Alliances.Red.TeamKeys = append([]string(nil), m.Alliances.Red.TeamKeys...)
		m.Alliances.Blue.TeamKeys = append([]string(nil), m.Alliances.Blue.TeamKeys...)
		out[i] = m
	}
	return matchsync.FeedEvent{Key: c.event, Matches: out}, true
}
