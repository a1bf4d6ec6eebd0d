package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/config"
	"github.com/phambaophuc/image-seo/internal/http/middleware"
	"github.com/phambaophuc/image-seo/internal/models"
	"github.com/phambaophuc/image-seo/internal/services/batch"
	"github.com/phambaophuc/image-seo/internal/services/batchstore"
	"github.com/phambaophuc/image-seo/internal/services/ledger"
	"github.com/phambaophuc/image-seo/internal/services/queue"
	"github.com/phambaophuc/image-seo/internal/services/storage"
)

// Processor is the batch pipeline as the handlers see it.
type Processor interface {
	Process(ctx context.Context, req batch.Request) (*models.BatchResult, error)
}

type BatchHandler struct {
	processor Processor
	records   batchstore.Store
	ledger    ledger.Ledger
	storage   *storage.Service
	queue     *queue.Service
	logger    *zap.Logger
	config    *config.Config
}

func NewBatchHandler(
	processor Processor,
	records batchstore.Store,
	ldg ledger.Ledger,
	storage *storage.Service,
	queue *queue.Service,
	logger *zap.Logger,
	config *config.Config,
) *BatchHandler {
	return &BatchHandler{
		processor: processor,
		records:   records,
		ledger:    ldg,
		storage:   storage,
		queue:     queue,
		logger:    logger,
		config:    config,
	}
}

// CreateBatch handles the multipart batch submission, for both initial
// submissions and regenerations of a failed subset.
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	if err := c.Request.ParseMultipartForm(64 << 20); err != nil {
		badRequest(c, "Failed to parse form data")
		return
	}

	files := c.Request.MultipartForm.File["images"]
	if len(files) == 0 {
		badRequest(c, "No image files provided")
		return
	}
	if len(files) > h.config.Upload.MaxFiles {
		badRequest(c, "Too many files in one batch")
		return
	}
	if expected, ok := formInt(c, "totalExpectedFiles"); ok && expected != len(files) {
		badRequest(c, "File count does not match totalExpectedFiles")
		return
	}

	constraints, err := parseConstraints(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	payloads, err := readPayloads(files)
	if err != nil {
		h.logger.Warn("failed to read uploaded files", zap.Error(err))
		badRequest(c, "Failed to read uploaded files")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Upload.BatchTimeout)
	defer cancel()

	result, err := h.processor.Process(ctx, batch.Request{
		UserID:       userID,
		BatchID:      c.PostForm("batchId"),
		Images:       payloads,
		Constraints:  constraints,
		Regeneration: c.PostForm("isRegeneration") == "true",
	})
	if err != nil {
		if errors.Is(err, batch.ErrBatchFull) {
			badRequest(c, err.Error())
			return
		}
		h.logger.Error("batch processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Message: "Failed to process batch",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Batch processed",
		Data:    result,
	})
}

// GetBatch returns the recorded batch with a merged per-filename view.
func (h *BatchHandler) GetBatch(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	batchID := c.Param("id")

	record, err := h.records.Get(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, batchstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.APIResponse{Success: false, Message: "Batch not found"})
			return
		}
		h.logger.Error("batch lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{Success: false, Message: "Failed to load batch"})
		return
	}
	// Batches are private to their owner.
	if record.UserID != userID {
		c.JSON(http.StatusNotFound, models.APIResponse{Success: false, Message: "Batch not found"})
		return
	}

	merged := record.MergedOutcomes()
	successful := make([]models.ProcessedImage, 0, len(merged))
	failed := make([]models.FailedImage, 0)
	for _, o := range merged {
		if o.Succeeded() {
			successful = append(successful, models.ProcessedImage{
				Filename:   o.Filename,
				StorageKey: o.StorageKey,
				URL:        o.URL,
				Metadata:   *o.Metadata,
			})
		} else {
			failed = append(failed, models.FailedImage{Filename: o.Filename, Error: o.Error})
		}
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"batchId":          record.ID,
			"createdAt":        record.CreatedAt,
			"constraints":      record.Constraints,
			"successfulImages": successful,
			"failedImages":     failed,
		},
	})
}

// GetBalance returns the caller's current token balance.
func (h *BatchHandler) GetBalance(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("balance lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{Success: false, Message: "Failed to read balance"})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    gin.H{"balance": balance},
	})
}

// GetReconciliation returns flagged ledger discrepancies for operator review.
func (h *BatchHandler) GetReconciliation(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{Success: false, Message: "Reconciliation queue not configured"})
		return
	}

	events, err := h.queue.Events(c.Request.Context())
	if err != nil {
		h.logger.Error("reconciliation report read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{Success: false, Message: "Failed to read reconciliation report"})
		return
	}

	// Pending queue depth tells the operator whether the report is current.
	stats, err := h.queue.GetQueueStats()
	if err != nil {
		h.logger.Warn("queue stats unavailable", zap.Error(err))
		stats = nil
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: gin.H{
		"events": events,
		"queue":  stats,
	}})
}

func (h *BatchHandler) HealthCheck(c *gin.Context) {
	services := map[string]string{
		"queue": h.queue.HealthCheck(),
	}
	if h.storage != nil {
		for k, v := range h.storage.Health(c.Request.Context()) {
			services[k] = v
		}
	}

	overall := "healthy"
	for _, status := range services {
		if status != "healthy" && status != "not configured" {
			overall = "unhealthy"
			break
		}
	}

	statusCode := http.StatusOK
	if overall == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.APIResponse{
		Success: overall == "healthy",
		Data: models.HealthCheck{
			Status:    overall,
			Timestamp: time.Now(),
			Services:  services,
		},
	})
}
