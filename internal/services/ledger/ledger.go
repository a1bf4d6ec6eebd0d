// Package ledger implements the per-user token ledger: a running balance plus
// an append-only entry log. Debits are atomic check-and-write operations so a
// balance can never go negative, even under concurrent batches.
package ledger

import (
	"context"
	"errors"

	"github.com/phambaophuc/image-seo/internal/models"
)

// ErrInsufficientBalance is returned by TryDebit when the balance cannot
// cover the requested amount. TryDebit also fails closed: if the
// check-and-write cannot be performed atomically the debit is refused rather
// than risking an over-debit.
var ErrInsufficientBalance = errors.New("insufficient token balance")

type Ledger interface {
	// TryDebit atomically checks the balance and, if sufficient, subtracts
	// amount and appends an entry. No two concurrent debits may both succeed
	// when only one covers the remaining balance.
	TryDebit(ctx context.Context, userID string, amount int64, reason, batchID string) error

	// Credit adds amount to the balance and appends an entry.
	Credit(ctx context.Context, userID string, amount int64, reason, batchID string) error

	// Balance returns the current balance, the running sum of all entries.
	Balance(ctx context.Context, userID string) (int64, error)

	// Entries returns the full entry log for a user, oldest first.
	Entries(ctx context.Context, userID string) ([]models.LedgerEntry, error)
}
