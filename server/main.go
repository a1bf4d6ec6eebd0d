package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/config"
	"github.com/phambaophuc/image-seo/internal/http/handlers"
	"github.com/phambaophuc/image-seo/internal/http/routes"
	"github.com/phambaophuc/image-seo/internal/services/batch"
	"github.com/phambaophuc/image-seo/internal/services/batchstore"
	"github.com/phambaophuc/image-seo/internal/services/generator"
	"github.com/phambaophuc/image-seo/internal/services/ledger"
	"github.com/phambaophuc/image-seo/internal/services/processor"
	"github.com/phambaophuc/image-seo/internal/services/queue"
	"github.com/phambaophuc/image-seo/internal/services/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Auth.Secret == "" {
		logger.Fatal("AUTH_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the ledger, the batch records and the reconciliation report
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Initialize services
	tokenLedger := ledger.NewRedisLedger(redisClient)
	records := batchstore.NewRedisStore(redisClient)
	images := processor.New(cfg.Upload)
	blobs := storage.NewService(cfg, redisClient)

	gen, err := generator.NewGeminiGenerator(ctx, cfg.Gemini, logger)
	if err != nil {
		logger.Fatal("Failed to initialize metadata generator", zap.Error(err))
	}

	reconciliation, err := queue.NewService(cfg.RabbitMQ.URL, redisClient, logger)
	if err != nil {
		logger.Warn("Failed to initialize reconciliation queue", zap.Error(err))
		// Discrepancies still land in the logs; the durable report is unavailable
		reconciliation = nil
	} else {
		defer reconciliation.Close()
		if err := reconciliation.StartWorker(ctx, 1); err != nil {
			logger.Warn("Failed to start reconciliation worker", zap.Error(err))
		}
	}

	pipeline := batch.NewProcessor(gen, blobs, images, tokenLedger, records,
		reporterOrNil(reconciliation), logger, cfg.Upload.Workers, cfg.Upload.MaxFiles)

	// Initialize handlers
	batchHandler := handlers.NewBatchHandler(pipeline, records, tokenLedger, blobs, reconciliation, logger, cfg)

	router := routes.NewRouter(batchHandler, cfg.Auth.Secret, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	// Start server
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// reporterOrNil keeps the pipeline's Reporter a true nil interface when the
// queue is down; a typed nil would dodge the processor's nil check.
func reporterOrNil(q *queue.Service) batch.Reporter {
	if q == nil {
		return nil
	}
	return q
}
