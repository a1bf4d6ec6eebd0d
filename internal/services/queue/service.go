// Package queue carries ledger reconciliation events over RabbitMQ. When a
// stored image cannot be debited the discrepancy is published here instead of
// rolling the storage back; a worker drains the queue into a durable report
// for operator review.
package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const reconciliationQueue = "ledger_reconciliation"

// ReportKey is the Redis list the worker appends consumed events to.
const ReportKey = "reconciliation:events"

type Service struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	redisClient *redis.Client
	logger      *zap.Logger
	queueName   string
}

func NewService(rabbitmqURL string, redisClient *redis.Client, logger *zap.Logger) (*Service, error) {
	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		reconciliationQueue, // name
		true,                // durable
		false,               // delete when unused
		false,               // exclusive
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Service{
		conn:        conn,
		channel:     channel,
		redisClient: redisClient,
		logger:      logger,
		queueName:   reconciliationQueue,
	}, nil
}

func (q *Service) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	return nil
}
