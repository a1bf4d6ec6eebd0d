// Package batch drives a submitted batch of images through validation,
// metadata generation, storage, ledger debit and outcome recording. Items are
// independent: one image failing never aborts its siblings. Only running out
// of tokens short-circuits the remaining unprocessed items.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/models"
	"github.com/phambaophuc/image-seo/internal/services/batchstore"
	"github.com/phambaophuc/image-seo/internal/services/ledger"
	"github.com/phambaophuc/image-seo/pkg/utils"
)

// Recorded failure reasons. Clients match on these strings, so they are part
// of the API surface.
const (
	ReasonInvalidFile        = "invalid file"
	ReasonInsufficientTokens = "insufficient tokens"
	ReasonStorageFailed      = "storage failed"
	ReasonGenerationTimeout  = "generation timeout"
	ReasonCancelled          = "batch cancelled"
)

const debitReason = "image processed"

// ErrBatchFull is returned when a submission would push a batch past the
// image cap, counting outcomes already recorded under the same batch id.
var ErrBatchFull = errors.New("batch image limit exceeded")

type Generator interface {
	Generate(ctx context.Context, data []byte, mimeType string, c models.GenerationConstraints) (*models.ImageMetadata, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type ImageService interface {
	Validate(payload models.ImagePayload) error
	Prepare(payload models.ImagePayload) (data []byte, contentType string, err error)
}

// Reporter surfaces ledger discrepancies that are tolerated rather than
// rolled back.
type Reporter interface {
	Report(ctx context.Context, event models.ReconciliationEvent) error
}

type Processor struct {
	generator Generator
	blobs     BlobStore
	images    ImageService
	ledger    ledger.Ledger
	records   batchstore.Store
	reporter  Reporter
	logger    *zap.Logger
	workers   int
	maxBatch  int
}

func NewProcessor(
	generator Generator,
	blobs BlobStore,
	images ImageService,
	ldg ledger.Ledger,
	records batchstore.Store,
	reporter Reporter,
	logger *zap.Logger,
	workers, maxBatch int,
) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		generator: generator,
		blobs:     blobs,
		images:    images,
		ledger:    ldg,
		records:   records,
		reporter:  reporter,
		logger:    logger,
		workers:   workers,
		maxBatch:  maxBatch,
	}
}

type Request struct {
	UserID       string
	BatchID      string
	Images       []models.ImagePayload
	Constraints  models.GenerationConstraints
	Regeneration bool
}

// draft is a per-image result before the recording step has debited the
// ledger and persisted the outcome.
type draft struct {
	outcome models.ImageOutcome
	stored  bool
}

// Process runs one pass over the submitted images and returns the aggregated
// result with outcomes in submission order. On regeneration the caller passes
// only the previously-failed subset; merging into the prior result is the
// caller's job.
func (p *Processor) Process(ctx context.Context, req Request) (*models.BatchResult, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if req.BatchID == "" {
		req.BatchID = uuid.New().String()
	}

	prior, err := p.records.Count(ctx, req.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to check batch size: %w", err)
	}
	if prior+len(req.Images) > p.maxBatch {
		return nil, fmt.Errorf("%w: %d recorded + %d submitted > %d",
			ErrBatchFull, prior, len(req.Images), p.maxBatch)
	}

	// The ledger must be reachable before any effort is spent; an unreadable
	// balance fails the whole request closed.
	balance, err := p.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balance: %w", err)
	}

	p.logger.Info("batch processing started",
		zap.String("batch_id", req.BatchID),
		zap.String("user_id", req.UserID),
		zap.Int("images", len(req.Images)),
		zap.Int64("balance", balance),
		zap.Bool("regeneration", req.Regeneration))

	drafts := p.runItems(ctx, req, balance)
	result := p.record(ctx, req, drafts)

	p.logger.Info("batch processing finished",
		zap.String("batch_id", req.BatchID),
		zap.Int("succeeded", len(result.SuccessfulImages)),
		zap.Int("failed", len(result.FailedImages)),
		zap.Int64("remaining_tokens", result.RemainingTokens))

	return result, nil
}

// runItems executes validation, generation and storage with bounded
// parallelism. Headroom is reserved at scheduling time so that once the
// observed balance is exhausted, no further generator call is made. The
// scheduler and the workers write to disjoint draft slots.
func (p *Processor) runItems(ctx context.Context, req Request, balance int64) []draft {
	n := len(req.Images)
	drafts := make([]draft, n)

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := p.workers
	if n < workers {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				drafts[i] = p.processOne(ctx, req, req.Images[i])
			}
		}()
	}

	credits := balance
	for i := range req.Images {
		img := &req.Images[i]

		if err := p.images.Validate(*img); err != nil {
			p.logger.Warn("image rejected",
				zap.String("batch_id", req.BatchID),
				zap.String("filename", img.Filename),
				zap.Error(err))
			drafts[i] = failure(img.Filename, ReasonInvalidFile)
			continue
		}
		// Cancellation stops scheduling new work; in-flight items finish so
		// no stored object is left without a recorded outcome.
		if ctx.Err() != nil {
			drafts[i] = failure(img.Filename, ReasonCancelled)
			continue
		}
		if credits <= 0 {
			drafts[i] = failure(img.Filename, ReasonInsufficientTokens)
			continue
		}
		credits--
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return drafts
}

// processOne runs generation, preparation and storage for a single image.
// The ledger is not touched here; debits happen in the serialized recording
// step.
func (p *Processor) processOne(ctx context.Context, req Request, img models.ImagePayload) draft {
	metadata, err := p.generator.Generate(ctx, img.Data, img.ContentType, req.Constraints)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonGenerationTimeout
		}
		return failure(img.Filename, reason)
	}

	data, contentType, err := p.images.Prepare(img)
	if err != nil {
		p.logger.Warn("image preparation failed",
			zap.String("batch_id", req.BatchID),
			zap.String("filename", img.Filename),
			zap.Error(err))
		return failure(img.Filename, ReasonStorageFailed)
	}

	key := utils.BuildStorageKey(req.UserID, req.BatchID, img.Filename)
	url, err := p.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		p.logger.Warn("image storage failed",
			zap.String("batch_id", req.BatchID),
			zap.String("filename", img.Filename),
			zap.Error(err))
		return failure(img.Filename, ReasonStorageFailed)
	}

	return draft{
		stored: true,
		outcome: models.ImageOutcome{
			Filename:   img.Filename,
			StorageKey: key,
			URL:        url,
			Metadata:   metadata,
			RecordedAt: time.Now().UTC(),
		},
	}
}

// record is the single-writer step: it walks drafts in submission order,
// debits one token per stored image and appends the outcome. It runs on a
// context detached from cancellation so a cancelled batch still records what
// its in-flight items produced.
func (p *Processor) record(ctx context.Context, req Request, drafts []draft) *models.BatchResult {
	recCtx := context.WithoutCancel(ctx)

	result := &models.BatchResult{
		BatchID:          req.BatchID,
		SuccessfulImages: make([]models.ProcessedImage, 0, len(drafts)),
		FailedImages:     make([]models.FailedImage, 0),
	}

	for i := range drafts {
		d := &drafts[i]

		if d.stored {
			if err := p.ledger.TryDebit(recCtx, req.UserID, 1, debitReason, req.BatchID); err != nil {
				if errors.Is(err, ledger.ErrInsufficientBalance) {
					// A concurrent batch drained the balance after the
					// headroom reservation. Unwind the stored object and
					// record the item as unpaid-for.
					if derr := p.blobs.Delete(recCtx, d.outcome.StorageKey); derr != nil {
						p.logger.Error("failed to delete unpaid stored image",
							zap.String("key", d.outcome.StorageKey),
							zap.Error(derr))
					}
					*d = failure(d.outcome.Filename, ReasonInsufficientTokens)
				} else {
					// Ledger-level error after a durable store: the user
					// keeps the image, the discrepancy goes to
					// reconciliation.
					p.reportDiscrepancy(recCtx, req, d.outcome, err)
				}
			}
		}

		d.outcome.RecordedAt = time.Now().UTC()
		if err := p.records.AppendOutcome(recCtx, req.UserID, req.BatchID, req.Constraints, d.outcome); err != nil {
			p.logger.Error("failed to append batch outcome",
				zap.String("batch_id", req.BatchID),
				zap.String("filename", d.outcome.Filename),
				zap.Error(err))
		}

		if d.outcome.Succeeded() {
			result.SuccessfulImages = append(result.SuccessfulImages, models.ProcessedImage{
				Filename:   d.outcome.Filename,
				StorageKey: d.outcome.StorageKey,
				URL:        d.outcome.URL,
				Metadata:   *d.outcome.Metadata,
			})
		} else {
			result.FailedImages = append(result.FailedImages, models.FailedImage{
				Filename: d.outcome.Filename,
				Error:    d.outcome.Error,
			})
		}
	}

	remaining, err := p.ledger.Balance(recCtx, req.UserID)
	if err != nil {
		p.logger.Error("failed to read remaining balance",
			zap.String("user_id", req.UserID),
			zap.Error(err))
	}
	result.RemainingTokens = remaining

	return result
}

func (p *Processor) reportDiscrepancy(ctx context.Context, req Request, outcome models.ImageOutcome, cause error) {
	event := models.ReconciliationEvent{
		UserID:     req.UserID,
		BatchID:    req.BatchID,
		Filename:   outcome.Filename,
		StorageKey: outcome.StorageKey,
		Reason:     cause.Error(),
		OccurredAt: time.Now().UTC(),
	}

	p.logger.Error("stored image without ledger debit",
		zap.String("batch_id", req.BatchID),
		zap.String("filename", outcome.Filename),
		zap.Error(cause))

	if p.reporter == nil {
		return
	}
	if err := p.reporter.Report(ctx, event); err != nil {
		p.logger.Error("failed to publish reconciliation event",
			zap.String("batch_id", req.BatchID),
			zap.Error(err))
	}
}

func failure(filename, reason string) draft {
	return draft{
		outcome: models.ImageOutcome{
			Filename: filename,
			Error:    reason,
		},
	}
}
