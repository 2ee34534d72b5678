package ledgererr

import (
	"errors"
	"fmt"
)

// Kind identifica de forma estável o tipo de falha do ledger.
// A camada externa usa o Kind (e não a mensagem) para escolher o status HTTP.
type Kind string

const (
	KindInvalidInput          Kind = "INVALID_INPUT"
	KindNotFound              Kind = "NOT_FOUND"
	KindDuplicateUsername     Kind = "DUPLICATE_USERNAME"
	KindDuplicateWager        Kind = "DUPLICATE_WAGER"
	KindInsufficientFunds     Kind = "INSUFFICIENT_FUNDS"
	KindTransientStoreFailure Kind = "TRANSIENT_STORE_FAILURE"
	KindTransactionFailed     Kind = "TRANSACTION_FAILED"
	KindInternal              Kind = "INTERNAL"
)

// Error carrega o Kind, uma mensagem legível e a causa opcional.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara apenas o Kind, permitindo errors.Is(err, ErrNotFound)
// para qualquer erro de NotFound independente da mensagem.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinelas por Kind, usados com errors.Is.
var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrDuplicateUsername     = &Error{Kind: KindDuplicateUsername}
	ErrDuplicateWager        = &Error{Kind: KindDuplicateWager}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds}
	ErrTransientStoreFailure = &Error{Kind: KindTransientStoreFailure}
	ErrTransactionFailed     = &Error{Kind: KindTransactionFailed}
)

// New cria um erro com Kind e mensagem formatada.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap associa um Kind a uma causa existente.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// TransactionFailed marca uma falha ocorrida dentro de uma transação já
// desfeita. O resultado satisfaz errors.Is tanto para ErrTransactionFailed
// quanto para a causa específica.
func TransactionFailed(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTransactionFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailed, cause)
}

// ordem de precedência: o Kind mais específico vence
var precedence = []Kind{
	KindInvalidInput,
	KindNotFound,
	KindDuplicateUsername,
	KindDuplicateWager,
	KindInsufficientFunds,
	KindTransientStoreFailure,
	KindTransactionFailed,
}

// KindOf devolve o Kind mais específico encontrado na cadeia de erros.
// Erros sem classificação resultam em KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range precedence {
		if errors.Is(err, &Error{Kind: k}) {
			return k
		}
	}
	return KindInternal
}

// Message devolve a mensagem do erro do Kind mais específico da cadeia,
// ou err.Error() quando não há mensagem classificada.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e := find(err, KindOf(err)); e != nil && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

func find(err error, kind Kind) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return e
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if e := find(inner, kind); e != nil {
					return e
				}
			}
			return nil
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
