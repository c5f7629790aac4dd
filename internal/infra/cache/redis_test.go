package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tweet-pruner/internal/infra/clock"
)

func testClient(t *testing.T) *redisTestClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR не задан")
	}
	client, err := Connect(context.Background(), addr)
	if err != nil {
		t.Fatalf("не удалось подключиться к redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return &redisTestClient{Client: client, ns: "test-" + uuid.NewString()}
}

func TestRunLockIsExclusive(t *testing.T) {
	rc := testClient(t)
	ctx := context.Background()

	first := NewRunLock(rc.Client, rc.ns, time.Minute)
	second := NewRunLock(rc.Client, rc.ns, time.Minute)
	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("первая блокировка должна захватиться: %v", err)
	}
	if err := second.Acquire(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("ожидали ErrLocked, получили %v", err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("чужой Release не должен падать: %v", err)
	}
	if err := second.Acquire(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("чужой Release не должен снимать блокировку")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("не удалось снять блокировку: %v", err)
	}
	if err := second.Acquire(ctx); err != nil {
		t.Fatalf("после освобождения блокировка должна захватываться: %v", err)
	}
	_ = second.Release(ctx)
}

func TestRedisWindowBlocksAtCapacity(t *testing.T) {
	rc := testClient(t)
	clk := clock.NewManual(time.Now().UTC())
	w := NewRedisWindow(rc.Client, rc.ns, 2, time.Minute, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.Acquire(ctx); err != nil {
			t.Fatalf("вызов %d: %v", i, err)
		}
	}
	slept := clk.Slept()
	if len(slept) != 1 || slept[0] < 59*time.Second || slept[0] > time.Minute {
		t.Fatalf("третий вызов должен ждать около минуты, ожидания: %v", slept)
	}
}

type redisTestClient struct {
	*redis.Client
	ns string
}
