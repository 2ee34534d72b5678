package matches

import "context"

// Reader é a visão somente leitura usada pelo engine de liquidação.
type Reader interface {
	Get(ctx context.Context, matchID string) (Match, error)
	List(ctx context.Context) ([]Match, error)
}

// Store é o snapshot de partidas, alimentado pelo job de sincronização.
// Não existe remoção: os dados de eventos só crescem.
type Store interface {
	Reader
	Upsert(ctx context.Context, m Match) error
}
