package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a held job lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out named, expiring locks so that only one replica runs a job
// at a time. TryLock reports false without error when the lock is held
// elsewhere.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error)
}

// LocalLocker serialises jobs inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker returns an in-process Locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// TryLock acquires name unless another holder's lease is still valid.
func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[name]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[name] = expires
	return &localLock{locker: l, name: name, expires: expires}, true, nil
}

type localLock struct {
	locker  *LocalLocker
	name    string
	expires time.Time
}

func (l *localLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if current, ok := l.locker.held[l.name]; ok && current.Equal(l.expires) {
		delete(l.locker.held, l.name)
	}
	return nil
}

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates jobs across replicas with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker returns a Locker backed by client. Keys are namespaced
// under "readingd:job:".
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "readingd:job:"}
}

// TryLock sets the job key with a random token if it does not exist.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("scheduler: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: key, token: token}, true, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("scheduler: release %s: %w", l.key, err)
	}
	return nil
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("scheduler: ping redis %s: %w", addr, err)
	}
	return client, nil
}
