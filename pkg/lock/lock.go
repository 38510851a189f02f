// Package lock provides keyed mutual exclusion, in process and across
// instances through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"referral-ledger/pkg/config"
	"referral-ledger/pkg/util"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

var Module = fx.Module("lock", fx.Provide(NewLocker))

// Locker serializes work on a key. The returned func releases the lock and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Params struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewLocker(p Params) Locker {
	if p.Redis == nil {
		zap.L().Warn("[Lock] redis not configured, using in-process locks only")
		return NewLocalLocker()
	}
	return NewRedisLocker(p.Redis, p.Config.Referral.LockTTL, p.Config.Referral.LockWait)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a keyed mutex. Entries are dropped once no goroutine holds
// or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of live keys, for tests.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes the in-process lock first, then SET NX PX on the key with
// a random token. Release deletes the key only while the token still matches.
type RedisLocker struct {
	rdb   redis.UniversalClient
	local *LocalLocker
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{
		rdb:   rdb,
		local: NewLocalLocker(),
		ttl:   ttl,
		wait:  wait,
		retry: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	unlockLocal, err := l.local.Lock(waitCtx, key)
	if err != nil {
		return nil, l.waitErr(ctx, key, err)
	}

	token := util.GenerateToken(16)
	for {
		ok, err := l.rdb.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, l.waitErr(ctx, key, err)
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			unlockLocal()
			return nil, l.waitErr(ctx, key, waitCtx.Err())
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
				zap.L().Warn("[Lock] failed to release redis lock, it will expire", zap.String("key", key), zap.Error(err))
			}
			unlockLocal()
		})
	}, nil
}

func (l *RedisLocker) waitErr(parent context.Context, key string, err error) error {
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	return fmt.Errorf("acquire lock %s: %w", key, err)
}
