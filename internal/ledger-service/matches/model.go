package matches

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-ledger/pkg/ledgererr"
)

// Side é um dos dois lados de uma partida.
type Side string

const (
	SideRed  Side = "red"
	SideBlue Side = "blue"
)

// ParseSide normaliza e valida o lado informado pelo chamador.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideRed:
		return SideRed, nil
	case SideBlue:
		return SideBlue, nil
	}
	return "", ledgererr.New(ledgererr.KindInvalidInput, "invalid side %q", s)
}

// Odds guarda o multiplicador de pagamento de cada lado.
type Odds struct {
	Red  decimal.Decimal `json:"red"`
	Blue decimal.Decimal `json:"blue"`
}

// For devolve a odd do lado escolhido.
func (o Odds) For(side Side) decimal.Decimal {
	if side == SideBlue {
		return o.Blue
	}
	return o.Red
}

// Match é o registro do snapshot de partidas futuras.
type Match struct {
	ID          string    `json:"match_id"`
	EventID     string    `json:"event_id"`
	ScheduledAt time.Time `json:"time"`
	Red         []string  `json:"red"`
	Blue        []string  `json:"blue"`
	Odds        Odds      `json:"odds"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate garante identidade e odds estritamente positivas.
func (m Match) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ledgererr.New(ledgererr.KindInvalidInput, "match id required")
	}
	if !m.Odds.Red.IsPositive() || !m.Odds.Blue.IsPositive() {
		return ledgererr.New(ledgererr.KindInvalidInput, "match %s: odds must be positive (red=%s blue=%s)",
			m.ID, m.Odds.Red, m.Odds.Blue)
	}
	return nil
}

// clone copia os slices para que o chamador nunca compartilhe estado com o store.
func (m Match) clone() Match {
	m.Red = append([]string(nil), m.Red...)
	m.Blue = append([]string(nil), m.Blue...)
	return m
}
