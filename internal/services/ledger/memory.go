package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phambaophuc/image-seo/internal/models"
)

// MemoryLedger is an in-process Ledger with the same contract as the Redis
// implementation. Used in tests and local single-node runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  map[string][]models.LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		entries:  make(map[string][]models.LedgerEntry),
	}
}

func (l *MemoryLedger) TryDebit(ctx context.Context, userID string, amount int64, reason, batchID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[userID] < amount {
		return ErrInsufficientBalance
	}
	l.balances[userID] -= amount
	l.append(userID, -amount, reason, batchID)
	return nil
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount int64, reason, batchID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[userID] += amount
	l.append(userID, amount, reason, batchID)
	return nil
}

func (l *MemoryLedger) Balance(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *MemoryLedger) Entries(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.LedgerEntry, len(l.entries[userID]))
	copy(out, l.entries[userID])
	return out, nil
}

// append assumes l.mu is held.
func (l *MemoryLedger) append(userID string, delta int64, reason, batchID string) {
	l.entries[userID] = append(l.entries[userID], models.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	})
}
