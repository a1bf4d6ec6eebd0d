package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/models"
	"github.com/phambaophuc/image-seo/internal/services/batchstore"
	"github.com/phambaophuc/image-seo/internal/services/ledger"
)

// --- fakes ---

type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	// errs maps filename (carried in the payload bytes) to a generation error.
	errs map[string]error
}

func (g *fakeGenerator) Generate(ctx context.Context, data []byte, mimeType string, c models.GenerationConstraints) (*models.ImageMetadata, error) {
	name := string(data)
	g.mu.Lock()
	g.calls = append(g.calls, name)
	g.mu.Unlock()

	if err, ok := g.errs[name]; ok {
		return nil, err
	}
	return &models.ImageMetadata{
		Title:       "title for " + name,
		Description: "description for " + name,
		Keywords:    []string{"one", "two"},
	}, nil
}

func (g *fakeGenerator) called(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c == name {
			return true
		}
	}
	return false
}

type fakeBlobStore struct {
	mu      sync.Mutex
	puts    []string
	deletes []string
	failPut map[string]bool // keyed by filename suffix
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut[string(data)] {
		return "", errors.New("supabase unavailable")
	}
	b.puts = append(b.puts, key)
	return "https://blob.test/" + key, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, key)
	return nil
}

type fakeImages struct {
	invalid map[string]bool
}

func (f *fakeImages) Validate(payload models.ImagePayload) error {
	if f.invalid[payload.Filename] {
		return errors.New("invalid file: too large")
	}
	return nil
}

func (f *fakeImages) Prepare(payload models.ImagePayload) ([]byte, string, error) {
	return payload.Data, "image/jpeg", nil
}

type fakeReporter struct {
	mu     sync.Mutex
	events []models.ReconciliationEvent
}

func (r *fakeReporter) Report(ctx context.Context, event models.ReconciliationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// debitFailLedger makes every TryDebit fail with a fixed error while
// delegating everything else.
type debitFailLedger struct {
	ledger.Ledger
	err error
}

func (l *debitFailLedger) TryDebit(ctx context.Context, userID string, amount int64, reason, batchID string) error {
	return l.err
}

// --- helpers ---

type env struct {
	generator *fakeGenerator
	blobs     *fakeBlobStore
	images    *fakeImages
	ledger    *ledger.MemoryLedger
	records   *batchstore.MemoryStore
	reporter  *fakeReporter
}

func newEnv() *env {
	return &env{
		generator: &fakeGenerator{errs: map[string]error{}},
		blobs:     &fakeBlobStore{failPut: map[string]bool{}},
		images:    &fakeImages{invalid: map[string]bool{}},
		ledger:    ledger.NewMemoryLedger(),
		records:   batchstore.NewMemoryStore(),
		reporter:  &fakeReporter{},
	}
}

func (e *env) processor(workers int) *Processor {
	return NewProcessor(e.generator, e.blobs, e.images, e.ledger, e.records, e.reporter,
		zap.NewNop(), workers, 100)
}

func payloads(names ...string) []models.ImagePayload {
	out := make([]models.ImagePayload, 0, len(names))
	for _, n := range names {
		out = append(out, models.ImagePayload{
			Data:        []byte(n),
			Filename:    n,
			ContentType: "image/jpeg",
		})
	}
	return out
}

var testConstraints = models.GenerationConstraints{TitleLength: 80, DescriptionLength: 200, KeywordCount: 25}

// --- tests ---

func TestProcess_AllSucceed(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))

	result, err := e.processor(3).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	assert.Len(t, result.SuccessfulImages, 3)
	assert.Empty(t, result.FailedImages)
	assert.Equal(t, int64(2), result.RemainingTokens)
	assert.Equal(t, models.ClassificationAllSuccess, result.Classify())

	// Outcomes keep submission order even under parallel workers.
	assert.Equal(t, "a.jpg", result.SuccessfulImages[0].Filename)
	assert.Equal(t, "b.jpg", result.SuccessfulImages[1].Filename)
	assert.Equal(t, "c.jpg", result.SuccessfulImages[2].Filename)

	record, err := e.records.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, record.Outcomes, 3)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, testConstraints, record.Constraints)
}

func TestProcess_InsufficientTokensShortCircuits(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 1, "top-up", ""))

	result, err := e.processor(2).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.SuccessfulImages, 1)
	assert.Equal(t, "a.jpg", result.SuccessfulImages[0].Filename)
	require.Len(t, result.FailedImages, 2)
	for _, f := range result.FailedImages {
		assert.Equal(t, ReasonInsufficientTokens, f.Error)
	}
	assert.Equal(t, int64(0), result.RemainingTokens)

	// The generator was never invoked for the short-circuited items.
	assert.False(t, e.generator.called("b.jpg"))
	assert.False(t, e.generator.called("c.jpg"))
}

func TestProcess_InvalidFileSkipsGeneratorAndLedger(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))
	e.images.invalid["huge.jpg"] = true

	result, err := e.processor(1).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "huge.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.FailedImages, 1)
	assert.Equal(t, "huge.jpg", result.FailedImages[0].Filename)
	assert.Equal(t, ReasonInvalidFile, result.FailedImages[0].Error)
	assert.Len(t, result.SuccessfulImages, 2)
	assert.False(t, e.generator.called("huge.jpg"))
	// Only the two successes were debited.
	assert.Equal(t, int64(3), result.RemainingTokens)
}

func TestProcess_GenerationTimeoutIsPerItem(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))
	e.generator.errs["b.jpg"] = context.DeadlineExceeded

	result, err := e.processor(2).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.FailedImages, 1)
	assert.Equal(t, "b.jpg", result.FailedImages[0].Filename)
	assert.Equal(t, ReasonGenerationTimeout, result.FailedImages[0].Error)
	assert.Len(t, result.SuccessfulImages, 2)
	assert.Equal(t, int64(3), result.RemainingTokens, "no debit for the timed-out item")
	assert.Equal(t, models.ClassificationPartialSuccess, result.Classify())
}

func TestProcess_GeneratorErrorReasonIsRecorded(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))
	e.generator.errs["a.jpg"] = errors.New("model returned garbage")

	result, err := e.processor(1).Process(ctx, Request{
		UserID:      "u1",
		Images:      payloads("a.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)
	require.Len(t, result.FailedImages, 1)
	assert.Equal(t, "model returned garbage", result.FailedImages[0].Error)
	assert.NotEmpty(t, result.BatchID, "server generates a batch id when absent")
}

func TestProcess_StorageFailureLeavesNoDebit(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))
	e.blobs.failPut["b.jpg"] = true

	result, err := e.processor(2).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.FailedImages, 1)
	assert.Equal(t, ReasonStorageFailed, result.FailedImages[0].Error)
	assert.Equal(t, int64(3), result.RemainingTokens)

	entries, err := e.ledger.Entries(ctx, "u1")
	require.NoError(t, err)
	var debits int
	for _, entry := range entries {
		if entry.Delta < 0 {
			debits++
		}
	}
	assert.Equal(t, 2, debits, "a storage failure never leaves a dangling debit")
}

func TestProcess_OutcomeCountMatchesSubmission(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 2, "top-up", ""))
	e.images.invalid["bad.jpg"] = true
	e.generator.errs["slow.jpg"] = context.DeadlineExceeded

	names := []string{"a.jpg", "bad.jpg", "slow.jpg", "b.jpg", "c.jpg", "d.jpg"}
	result, err := e.processor(3).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads(names...),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	assert.Equal(t, len(names), len(result.SuccessfulImages)+len(result.FailedImages))

	n, err := e.records.Count(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, len(names), n)
}

func TestProcess_LedgerErrorKeepsImageAndFlagsReconciliation(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))

	broken := &debitFailLedger{Ledger: e.ledger, err: errors.New("ledger write timeout")}
	p := NewProcessor(e.generator, e.blobs, e.images, broken, e.records, e.reporter,
		zap.NewNop(), 1, 100)

	result, err := p.Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	// The user keeps the processed image; the discrepancy is flagged.
	require.Len(t, result.SuccessfulImages, 1)
	assert.Empty(t, e.blobs.deletes, "storage is not rolled back")
	require.Len(t, e.reporter.events, 1)
	assert.Equal(t, "b1", e.reporter.events[0].BatchID)
	assert.Equal(t, "a.jpg", e.reporter.events[0].Filename)
}

func TestProcess_ConcurrentDrainUnwindsStorage(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 5, "top-up", ""))

	drained := &debitFailLedger{Ledger: e.ledger, err: ledger.ErrInsufficientBalance}
	p := NewProcessor(e.generator, e.blobs, e.images, drained, e.records, e.reporter,
		zap.NewNop(), 1, 100)

	result, err := p.Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.FailedImages, 1)
	assert.Equal(t, ReasonInsufficientTokens, result.FailedImages[0].Error)
	assert.Len(t, e.blobs.deletes, 1, "the unpaid object is removed")
	assert.Empty(t, e.reporter.events)
}

func TestProcess_RegenerationOnlyTouchesSubset(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 10, "top-up", ""))
	e.generator.errs["b.jpg"] = errors.New("upstream error")
	e.generator.errs["c.jpg"] = errors.New("upstream error")

	p := e.processor(2)

	first, err := p.Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg", "c.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)
	require.Len(t, first.FailedImages, 2)
	require.Len(t, first.SuccessfulImages, 1)
	putsAfterFirst := len(e.blobs.puts)

	// The failures recover; resubmit only them under the same batch id.
	delete(e.generator.errs, "b.jpg")
	delete(e.generator.errs, "c.jpg")

	second, err := p.Process(ctx, Request{
		UserID:       "u1",
		BatchID:      "b1",
		Images:       payloads("b.jpg", "c.jpg"),
		Constraints:  testConstraints,
		Regeneration: true,
	})
	require.NoError(t, err)

	assert.Len(t, second.SuccessfulImages, 2)
	assert.Empty(t, second.FailedImages)
	assert.Equal(t, int64(7), second.RemainingTokens, "only the new debits count")
	assert.Equal(t, putsAfterFirst+2, len(e.blobs.puts), "a.jpg was not re-stored")

	// Merged presentation view: latest outcome per filename.
	record, err := e.records.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, record.Outcomes, 5, "history stays append-only")
	merged := record.MergedOutcomes()
	require.Len(t, merged, 3)
	for _, o := range merged {
		assert.True(t, o.Succeeded(), "filename %s", o.Filename)
	}
}

func TestProcess_BatchCapCountsPriorOutcomes(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 200, "top-up", ""))

	for i := 0; i < 99; i++ {
		require.NoError(t, e.records.AppendOutcome(ctx, "u1", "b1", testConstraints,
			models.ImageOutcome{Filename: fmt.Sprintf("f%d.jpg", i)}))
	}

	_, err := e.processor(1).Process(ctx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("x.jpg", "y.jpg"),
		Constraints: testConstraints,
	})
	assert.ErrorIs(t, err, ErrBatchFull)
}

func TestProcess_CancellationStopsScheduling(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	require.NoError(t, e.ledger.Credit(ctx, "u1", 10, "top-up", ""))

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel() // cancelled before any item is scheduled

	result, err := e.processor(2).Process(cancelCtx, Request{
		UserID:      "u1",
		BatchID:     "b1",
		Images:      payloads("a.jpg", "b.jpg"),
		Constraints: testConstraints,
	})
	require.NoError(t, err)

	require.Len(t, result.FailedImages, 2)
	for _, f := range result.FailedImages {
		assert.Equal(t, ReasonCancelled, f.Error)
	}
	assert.Empty(t, e.generator.calls)

	// Outcomes are still recorded despite the cancelled context.
	n, err := e.records.Count(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestProcess_EmptyBatchRejected(t *testing.T) {
	e := newEnv()
	_, err := e.processor(1).Process(context.Background(), Request{UserID: "u1"})
	assert.Error(t, err)
}
