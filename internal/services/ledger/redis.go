package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phambaophuc/image-seo/internal/models"
)

// debitScript performs the check-and-debit and the entry append in one atomic
// step. Returns the new balance, or -1 when the balance is insufficient.
const debitScript = `
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if bal < amount then
  return -1
end
redis.call('DECRBY', KEYS[1], amount)
redis.call('RPUSH', KEYS[2], ARGV[2])
return bal - amount
`

type RedisLedger struct {
	client *redis.Client
	debit  *redis.Script
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		debit:  redis.NewScript(debitScript),
	}
}

func balanceKey(userID string) string {
	return "ledger:balance:" + userID
}

func entriesKey(userID string) string {
	return "ledger:entries:" + userID
}

func (l *RedisLedger) TryDebit(ctx context.Context, userID string, amount int64, reason, batchID string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	entry, err := marshalEntry(userID, -amount, reason, batchID)
	if err != nil {
		return err
	}

	res, err := l.debit.Run(ctx, l.client,
		[]string{balanceKey(userID), entriesKey(userID)},
		amount, entry).Int64()
	if err != nil {
		// Fail closed: an unreachable ledger refuses the debit.
		return fmt.Errorf("ledger debit failed: %w", err)
	}
	if res < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (l *RedisLedger) Credit(ctx context.Context, userID string, amount int64, reason, batchID string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	entry, err := marshalEntry(userID, amount, reason, batchID)
	if err != nil {
		return err
	}

	pipe := l.client.TxPipeline()
	pipe.IncrBy(ctx, balanceKey(userID), amount)
	pipe.RPush(ctx, entriesKey(userID), entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger credit failed: %w", err)
	}
	return nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	bal, err := l.client.Get(ctx, balanceKey(userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger balance read failed: %w", err)
	}
	return bal, nil
}

func (l *RedisLedger) Entries(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	raw, err := l.client.LRange(ctx, entriesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger entries read failed: %w", err)
	}

	entries := make([]models.LedgerEntry, 0, len(raw))
	for _, r := range raw {
		var e models.LedgerEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("corrupt ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Ping reports ledger store reachability for health checks.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func marshalEntry(userID string, delta int64, reason, batchID string) (string, error) {
	entry := models.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	return string(b), nil
}
