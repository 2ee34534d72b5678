// Package store define o escopo transacional usado pelo engine: tudo que
// acontece dentro de RunInTx é confirmado junto ou desfeito junto.
package store

import (
	"context"

	"github.com/radieske/wager-ledger/internal/ledger-service/accounts"
	"github.com/radieske/wager-ledger/internal/ledger-service/wagers"
)

// Tx expõe o ledger de contas e o livro de apostas ligados à mesma transação.
type Tx interface {
	Accounts() accounts.Ledger
	Wagers() wagers.Book
}

// Runner executa fn em uma transação. Se fn retorna erro nada é aplicado, e
// o erro volta marcado com ledgererr.ErrTransactionFailed mantendo a causa.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
