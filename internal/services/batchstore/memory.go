package batchstore

import (
	"context"
	"sync"
	"time"

	"github.com/phambaophuc/image-seo/internal/models"
)

// MemoryStore is an in-process Store used in tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]*models.BatchRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*models.BatchRecord)}
}

func (s *MemoryStore) AppendOutcome(ctx context.Context, userID, batchID string, constraints models.GenerationConstraints, outcome models.ImageOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.batches[batchID]
	if !ok {
		record = &models.BatchRecord{
			ID:          batchID,
			UserID:      userID,
			Constraints: constraints,
			CreatedAt:   time.Now().UTC(),
		}
		s.batches[batchID] = record
	}
	record.Outcomes = append(record.Outcomes, outcome)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	out := *record
	out.Outcomes = make([]models.ImageOutcome, len(record.Outcomes))
	copy(out.Outcomes, record.Outcomes)
	return &out, nil
}

func (s *MemoryStore) Count(ctx context.Context, batchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.batches[batchID]
	if !ok {
		return 0, nil
	}
	return len(record.Outcomes), nil
}
