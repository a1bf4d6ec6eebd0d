package models

import "time"

// GenerationConstraints are fixed at batch creation and reused verbatim for
// every regeneration pass against the same batch id.
type GenerationConstraints struct {
	TitleLength       int `json:"titleLength"`
	DescriptionLength int `json:"descriptionLength"`
	KeywordCount      int `json:"keywordCount"`
}

// ImageMetadata is the SEO metadata produced for one image.
type ImageMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// ImagePayload is one submitted image before processing.
type ImagePayload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ImageOutcome records the result for a single image within a batch. A zero
// Error means success. Outcomes are append-only: a regeneration writes a new
// outcome for the same filename rather than mutating the old one.
type ImageOutcome struct {
	Filename   string         `json:"filename"`
	StorageKey string         `json:"storageKey,omitempty"`
	URL        string         `json:"url,omitempty"`
	Metadata   *ImageMetadata `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

func (o ImageOutcome) Succeeded() bool {
	return o.Error == ""
}

type ProcessedImage struct {
	Filename   string        `json:"filename"`
	StorageKey string        `json:"storageKey"`
	URL        string        `json:"url"`
	Metadata   ImageMetadata `json:"metadata"`
}

type FailedImage struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchResult is the aggregated response for one processing pass. Entries in
// both lists preserve submission order.
type BatchResult struct {
	BatchID          string           `json:"batchId"`
	SuccessfulImages []ProcessedImage `json:"successfulImages"`
	FailedImages     []FailedImage    `json:"failedImages"`
	RemainingTokens  int64            `json:"remainingTokens"`
}

// Terminal batch classifications.
const (
	ClassificationAllSuccess     = "allSuccess"
	ClassificationPartialSuccess = "partialSuccess"
	ClassificationAllFailed      = "allFailed"
)

// Classify reports which of the three terminal batch classifications a
// result falls into.
func (r *BatchResult) Classify() string {
	switch {
	case len(r.FailedImages) == 0:
		return ClassificationAllSuccess
	case len(r.SuccessfulImages) == 0:
		return ClassificationAllFailed
	default:
		return ClassificationPartialSuccess
	}
}

// BatchRecord is the durable record of a batch: owner, the constraints it was
// created with, and the full append-only outcome history.
type BatchRecord struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId"`
	Constraints GenerationConstraints `json:"constraints"`
	CreatedAt   time.Time             `json:"createdAt"`
	Outcomes    []ImageOutcome        `json:"outcomes"`
}

// MergedOutcomes collapses the history into a presentation view: the latest
// outcome per filename wins, first-seen filename order is preserved. The raw
// history stays untouched underneath.
func (b *BatchRecord) MergedOutcomes() []ImageOutcome {
	index := make(map[string]int, len(b.Outcomes))
	merged := make([]ImageOutcome, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if i, ok := index[o.Filename]; ok {
			merged[i] = o
			continue
		}
		index[o.Filename] = len(merged)
		merged = append(merged, o)
	}
	return merged
}
