package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/models"
)

// Report publishes a reconciliation event. Events are persistent so a broker
// restart does not lose a flagged discrepancy.
func (q *Service) Report(ctx context.Context, event models.ReconciliationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation event: %w", err)
	}

	err = q.channel.Publish(
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish reconciliation event: %w", err)
	}

	q.logger.Warn("reconciliation event published",
		zap.String("user_id", event.UserID),
		zap.String("batch_id", event.BatchID),
		zap.String("filename", event.Filename),
		zap.String("reason", event.Reason))

	return nil
}
