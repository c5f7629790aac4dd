package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

const defaultRedisBacklog = 10000

// RedisPublisher складывает события в список Redis, храня не больше backlog последних.
type RedisPublisher struct {
	client  *redis.Client
	key     string
	backlog int64
}

var _ domain.DecisionPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher создаёт публикатор в список key.
func NewRedisPublisher(client *redis.Client, key string, backlog int64) *RedisPublisher {
	if backlog <= 0 {
		backlog = defaultRedisBacklog
	}
	return &RedisPublisher{client: client, key: key, backlog: backlog}
}

// Publish реализует domain.DecisionPublisher.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.DecisionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, p.key, payload)
		pipe.LTrim(ctx, p.key, 0, p.backlog-1)
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "publish_event", p.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Recent читает до n последних событий, от новых к старым.
func (p *RedisPublisher) Recent(ctx context.Context, n int64) ([]domain.DecisionEvent, error) {
	if n <= 0 {
		return nil, errors.New("n must be positive")
	}
	raw, err := p.client.LRange(ctx, p.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	out := make([]domain.DecisionEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.DecisionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, event)
	}
	return out, nil
}
