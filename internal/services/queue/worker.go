package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/models"
)

// StartWorker consumes reconciliation events and appends them to the durable
// report list in Redis.
func (q *Service) StartWorker(ctx context.Context, workerID int) error {
	msgs, err := q.channel.Consume(
		q.queueName,                        // queue
		fmt.Sprintf("worker-%d", workerID), // consumer
		false,                              // auto-ack
		false,                              // exclusive
		false,                              // no-local
		false,                              // no-wait
		nil,                                // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("Reconciliation worker started", zap.Int("worker_id", workerID))

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.logger.Info("Reconciliation worker stopping", zap.Int("worker_id", workerID))
				return
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("Message channel closed", zap.Int("worker_id", workerID))
					return
				}
				q.handleMessage(ctx, msg, workerID)
			}
		}
	}()

	return nil
}

func (q *Service) handleMessage(ctx context.Context, msg amqp.Delivery, workerID int) {
	var event models.ReconciliationEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		q.logger.Error("Failed to unmarshal reconciliation event",
			zap.Error(err),
			zap.Int("worker_id", workerID))
		msg.Nack(false, false) // malformed, do not requeue
		return
	}

	if err := q.redisClient.RPush(ctx, ReportKey, msg.Body).Err(); err != nil {
		q.logger.Error("Failed to persist reconciliation event",
			zap.Error(err),
			zap.String("batch_id", event.BatchID))
		msg.Nack(false, true) // retry later
		return
	}

	if err := msg.Ack(false); err != nil {
		q.logger.Error("Failed to ack reconciliation event",
			zap.Error(err),
			zap.String("batch_id", event.BatchID))
		return
	}

	q.logger.Info("Reconciliation event recorded",
		zap.String("user_id", event.UserID),
		zap.String("batch_id", event.BatchID),
		zap.String("filename", event.Filename))
}
