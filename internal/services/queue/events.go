package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phambaophuc/image-seo/internal/models"
)

// Events returns the reconciliation report accumulated by the worker,
// oldest first.
func (q *Service) Events(ctx context.Context) ([]models.ReconciliationEvent, error) {
	raws, err := q.redisClient.LRange(ctx, ReportKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reconciliation report: %w", err)
	}

	events := make([]models.ReconciliationEvent, 0, len(raws))
	for _, r := range raws {
		var e models.ReconciliationEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("corrupt reconciliation event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
