package models

import "time"

// LedgerEntry is one append-only token movement. The sum of all deltas for a
// user is that user's balance.
type LedgerEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	BatchID   string    `json:"batchId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReconciliationEvent flags a stored image whose ledger debit could not be
// completed. The image is kept; the event is queued for operator review.
type ReconciliationEvent struct {
	UserID     string    `json:"user_id"`
	BatchID    string    `json:"batch_id"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storage_key"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
