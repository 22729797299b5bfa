package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"assessment-attempt-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EscalationQueueKey is the Redis list holding failed auto-submissions.
const EscalationQueueKey = "attempt:escalations"

// EscalationQueue appends escalations to a Redis list for an operator or
// external retry worker to consume.
type EscalationQueue struct {
	client *redis.Client
}

func NewEscalationQueue(client *redis.Client) *EscalationQueue {
	return &EscalationQueue{client: client}
}

func (q *EscalationQueue) Escalate(ctx context.Context, e domain.Escalation) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	if err := q.client.RPush(ctx, EscalationQueueKey, raw).Err(); err != nil {
		return fmt.Errorf("push escalation: %w", err)
	}
	return nil
}

// List returns up to limit queued escalations, oldest first, without removing
// them. limit <= 0 returns all. Undecodable entries are skipped.
func (q *EscalationQueue) List(ctx context.Context, limit int) ([]domain.Escalation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := q.client.LRange(ctx, EscalationQueueKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	out := make([]domain.Escalation, 0, len(items))
	for _, item := range items {
		var e domain.Escalation
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the queue length.
func (q *EscalationQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, EscalationQueueKey).Result()
}
