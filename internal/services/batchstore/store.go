// Package batchstore persists batch records: the owning user, the generation
// constraints fixed at creation, and the ordered, append-only outcome list.
package batchstore

import (
	"context"
	"errors"

	"github.com/phambaophuc/image-seo/internal/models"
)

var ErrNotFound = errors.New("batch not found")

type Store interface {
	// AppendOutcome records one outcome. The first append for a batch id
	// creates the record (upsert semantics); later appends never touch the
	// owner or constraints fields.
	AppendOutcome(ctx context.Context, userID, batchID string, constraints models.GenerationConstraints, outcome models.ImageOutcome) error

	// Get returns the full record including outcome history.
	Get(ctx context.Context, batchID string) (*models.BatchRecord, error)

	// Count returns the number of recorded outcomes, 0 for an unknown batch.
	Count(ctx context.Context, batchID string) (int, error)
}
