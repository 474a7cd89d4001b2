package data

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/deepwiki-go/repochat/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// BuildLocker serialises first-time index builds per repository identifier.
// The returned release func must be called exactly once.
type BuildLocker interface {
	Lock(ctx context.Context, repoID string) (release func(), err error)
}

// NewRedisClient connects to the configured redis server
func NewRedisClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// NewBuildLocker returns the locker selected by lock.backend. rdb is only
// used by the redis backend.
func NewBuildLocker(cfg *config.Config, rdb redis.UniversalClient) BuildLocker {
	if cfg.Lock.Backend == "redis" && rdb != nil {
		return NewRedisLocker(rdb, cfg.Redis.LockTTL)
	}
	return NewLocalLocker()
}

// LocalLocker is an in-process keyed lock
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty keyed lock
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*lockSlot)}
}

// Lock waits for the key or for ctx to end
func (l *LocalLocker) Lock(ctx context.Context, repoID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[repoID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[repoID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(repoID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.releaseRef(repoID, slot)
		})
	}, nil
}

func (l *LocalLocker) releaseRef(repoID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, repoID)
	}
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker coordinates builders across processes sharing one storage root
type RedisLocker struct {
	rdb          redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisLocker creates a locker over rdb. ttl bounds how long a crashed
// builder can hold a key.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, pollInterval: 200 * time.Millisecond}
}

func buildLockKey(repoID string) string {
	return "repochat:build:" + repoID
}

// Lock polls SET NX until acquired or ctx ends
func (r *RedisLocker) Lock(ctx context.Context, repoID string) (func(), error) {
	key := buildLockKey(repoID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire build lock for %s: %w", repoID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
				log.Printf("Warning: failed to release build lock for %s: %v", repoID, err)
			}
		})
	}, nil
}
