package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked возвращается, если запуск уже выполняется другим процессом.
var ErrLocked = errors.New("run lock is held by another process")

// Connect создаёт клиента Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock — блокировка единственного писателя журнала.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRunLock создаёт блокировку для пространства журнала.
func NewRunLock(client *redis.Client, namespace string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: "pruner:lock:" + namespace, ttl: ttl, token: uuid.NewString()}
}

// Acquire захватывает блокировку или возвращает ErrLocked.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release снимает блокировку, только если она всё ещё наша.
func (l *RunLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
