// Package client drives a batch upload from the caller's side: one session
// per batch, an explicit state machine, throttled byte progress, cooperative
// cancellation and regeneration of the failed subset under the same batch id.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/phambaophuc/image-seo/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateUploading
	StateServerProcessing
	StateCompleted
	StateCancelled
	StateFatalError
	StateInsufficientTokens
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateUploading:
		return "uploading"
	case StateServerProcessing:
		return "server processing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFatalError:
		return "fatal error"
	case StateInsufficientTokens:
		return "insufficient tokens"
	default:
		return "unknown"
	}
}

var (
	ErrNoFiles            = errors.New("no files to upload")
	ErrInsufficientTokens = errors.New("not enough tokens for this batch")
	ErrAuthentication     = errors.New("authentication rejected")
	ErrCancelled          = errors.New("upload cancelled")
	ErrNotRegenerable     = errors.New("session has no failed images to regenerate")
	ErrSessionUsed        = errors.New("session already started; create a new one")
)

// File is one image queued for upload.
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// ProgressFunc receives throttled upload progress, percent in [0,100].
type ProgressFunc func(percent int, state State)

type Option func(*Session)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.onProgress = fn }
}

func WithProgressInterval(d time.Duration) Option {
	return func(s *Session) { s.throttle = d }
}

// Session owns one batch from submission through (possibly several)
// regeneration passes. It is discarded when the caller starts a new batch.
type Session struct {
	baseURL    string
	token      string
	httpClient *http.Client
	onProgress ProgressFunc
	throttle   time.Duration

	mu             sync.Mutex
	state          State
	classification string
	batchID        string
	files          []File
	constraints    models.GenerationConstraints
	result         *models.BatchResult
	cancel         context.CancelFunc
	lastEmit       time.Time
	lastPercent    int
}

func NewSession(baseURL, token string, opts ...Option) *Session {
	s := &Session{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{},
		state:      StateIdle,
		// At most ~3 progress updates per second.
		throttle: 333 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start submits the batch. observedBalance is the client's last known token
// balance; when it cannot cover the file count the session terminates in
// InsufficientTokens without contacting the server.
func (s *Session) Start(ctx context.Context, files []File, constraints models.GenerationConstraints, observedBalance int64) (*models.BatchResult, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	if len(files) == 0 {
		s.mu.Unlock()
		return nil, ErrNoFiles
	}
	if observedBalance < int64(len(files)) {
		s.state = StateInsufficientTokens
		s.mu.Unlock()
		return nil, ErrInsufficientTokens
	}
	s.files = files
	s.constraints = constraints
	s.state = StateSubmitting
	s.mu.Unlock()

	result, err := s.run(ctx, files, false)
	if err != nil {
		return nil, err
	}

	s.finish(result)
	return s.Result(), nil
}

// Regenerate resubmits only the failed subset under the same batch id. The
// new pass's result is merged into the session's cumulative view.
func (s *Session) Regenerate(ctx context.Context) (*models.BatchResult, error) {
	s.mu.Lock()
	if s.state != StateCompleted ||
		(s.classification != models.ClassificationPartialSuccess && s.classification != models.ClassificationAllFailed) {
		s.mu.Unlock()
		return nil, ErrNotRegenerable
	}

	failed := make(map[string]bool, len(s.result.FailedImages))
	for _, f := range s.result.FailedImages {
		failed[f.Filename] = true
	}
	subset := make([]File, 0, len(failed))
	for _, f := range s.files {
		if failed[f.Name] {
			subset = append(subset, f)
		}
	}
	if len(subset) == 0 {
		s.mu.Unlock()
		return nil, ErrNotRegenerable
	}
	s.state = StateSubmitting
	s.lastPercent = 0
	s.mu.Unlock()

	result, err := s.run(ctx, subset, true)
	if err != nil {
		return nil, err
	}

	s.finish(result)
	return s.Result(), nil
}

// Cancel aborts the in-flight transport operation. Server-side effects of
// already-completed items are not retracted.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Classification reports the terminal batch classification of the cumulative
// result, empty until the session completes.
func (s *Session) Classification() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classification
}

func (s *Session) BatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchID
}

// Result returns a copy of the cumulative batch result.
func (s *Session) Result() *models.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	out := *s.result
	out.SuccessfulImages = append([]models.ProcessedImage(nil), s.result.SuccessfulImages...)
	out.FailedImages = append([]models.FailedImage(nil), s.result.FailedImages...)
	return &out
}

// FetchBalance reads the caller's token balance from the server.
func (s *Session) FetchBalance(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/ledger/balance", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("balance request failed: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Balance int64 `json:"balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, fmt.Errorf("malformed balance response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || env.Message == models.AuthInvalidMessage {
		return 0, ErrAuthentication
	}
	if !env.Success {
		return 0, fmt.Errorf("balance request rejected: %s", env.Message)
	}
	return env.Data.Balance, nil
}

// run performs one upload/processing cycle. The cancel handle is owned by the
// session and released on every exit path.
func (s *Session) run(ctx context.Context, files []File, isRegeneration bool) (*models.BatchResult, error) {
	s.mu.Lock()
	batchID := s.batchID
	constraints := s.constraints
	s.mu.Unlock()

	body, contentType, err := buildMultipartBody(files, constraints, batchID, isRegeneration)
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	reader := &progressReader{
		r:     bytes.NewReader(body),
		total: int64(len(body)),
		emit:  s.emitProgress,
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.baseURL+"/api/v1/batches", reader)
	if err != nil {
		s.fail()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.ContentLength = int64(len(body))

	s.setState(StateUploading)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			s.setState(StateCancelled)
			return nil, ErrCancelled
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.setState(StateCancelled)
			return nil, ErrCancelled
		}
		s.fail()
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env struct {
		Success bool                `json:"success"`
		Message string              `json:"message"`
		Data    *models.BatchResult `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		s.fail()
		return nil, fmt.Errorf("malformed response body: %w", err)
	}

	// The auth sentinel is terminal: the caller must re-authenticate.
	if resp.StatusCode == http.StatusUnauthorized || env.Message == models.AuthInvalidMessage {
		s.fail()
		return nil, ErrAuthentication
	}
	if resp.StatusCode != http.StatusOK || !env.Success || env.Data == nil {
		s.fail()
		return nil, fmt.Errorf("batch rejected: %s", env.Message)
	}

	return env.Data, nil
}

// finish merges the pass result into the cumulative view and classifies it.
func (s *Session) finish(result *models.BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.result = Merge(s.result, result)
	s.batchID = s.result.BatchID
	s.classification = s.result.Classify()
	s.state = StateCompleted
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFatalError
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
