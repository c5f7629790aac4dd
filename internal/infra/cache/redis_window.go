package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/clock"
	"tweet-pruner/internal/infra/metrics"
)

// acquireScript атомарно чистит устаревшие отметки и занимает слот.
// Возвращает 0 при успехе или число миллисекунд до освобождения слота.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local span = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - span)
if redis.call("ZCARD", key) < limit then
	redis.call("ZADD", key, now, ARGV[4])
	redis.call("PEXPIRE", key, span)
	return 0
end
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return tonumber(oldest[2]) + span - now
`)

// RedisWindow — скользящее окно в sorted set Redis, общее для всех хостов.
type RedisWindow struct {
	client *redis.Client
	key    string
	limit  int
	span   time.Duration
	clock  clock.Clock
}

var _ domain.RateWindow = (*RedisWindow)(nil)

// NewRedisWindow создаёт окно для пространства журнала.
func NewRedisWindow(client *redis.Client, namespace string, limit int, span time.Duration, clk clock.Clock) *RedisWindow {
	if limit <= 0 {
		limit = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &RedisWindow{client: client, key: "pruner:window:" + namespace, limit: limit, span: span, clock: clk}
}

// Acquire реализует domain.RateWindow.
func (w *RedisWindow) Acquire(ctx context.Context) error {
	var waited time.Duration
	for {
		now := w.clock.Now()
		member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
		start := time.Now()
		waitMs, err := acquireScript.Run(ctx, w.client, []string{w.key},
			now.UnixMilli(), w.span.Milliseconds(), w.limit, member).Int64()
		metrics.ObserveNetworkRequest("redis", "window_acquire", w.key, start, err)
		if err != nil {
			return fmt.Errorf("rate window: %w", err)
		}
		if waitMs <= 0 {
			if waited > 0 {
				metrics.ObserveWindowWait(waited)
			}
			return nil
		}
		wait := time.Duration(waitMs) * time.Millisecond
		if wait > w.span {
			wait = w.span
		}
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Snapshot реализует domain.RateWindow. Отметки живут в Redis,
// поэтому в RunState их копировать не нужно.
func (w *RedisWindow) Snapshot() []time.Time {
	return nil
}
