package client

import "github.com/phambaophuc/image-seo/internal/models"

// Merge combines a prior cumulative result with a regeneration pass into a
// new value: successes concatenate, the failed list is replaced by the new
// attempt's residual failures, and the token balance comes from the new pass.
// Both inputs are left untouched.
func Merge(prior, next *models.BatchResult) *models.BatchResult {
	if prior == nil {
		out := *next
		out.SuccessfulImages = append([]models.ProcessedImage(nil), next.SuccessfulImages...)
		out.FailedImages = append([]models.FailedImage(nil), next.FailedImages...)
		return &out
	}

	merged := &models.BatchResult{
		BatchID:         next.BatchID,
		RemainingTokens: next.RemainingTokens,
	}
	merged.SuccessfulImages = append(append([]models.ProcessedImage(nil),
		prior.SuccessfulImages...), next.SuccessfulImages...)
	merged.FailedImages = append([]models.FailedImage(nil), next.FailedImages...)
	return merged
}
