package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const (
	keyLockTTL        = 30 * time.Second
	keyLockMaxRetries = 60
)

// Lock keys. One logical writer per key at a time.
func ShiftLockKey() string            { return "lock:shift:active" }
func MachineLockKey(id string) string { return "lock:machine:" + id }
func JobLockKey(id string) string     { return "lock:job:" + id }
func ReportLockKey(id string) string  { return "lock:report:" + id }
func PaintLockKey(id string) string   { return "lock:paint:" + id }

// ObtainLock serializes writers on key. The returned release func must be called exactly once.
//
// Redis lock is a best-effort optimization: when Redis is not connected (or fails) we fall back to an
// in-process keyed mutex. Correctness never depends on the lock alone; every write is also guarded by
// a conditional update in the database.
func ObtainLock(ctx context.Context, key string) (func(), error) {
	logger := config.GetLogger()
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, key, keyLockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.ExponentialBackoff(10*time.Millisecond, 250*time.Millisecond), keyLockMaxRetries),
		})
		if err == nil {
			return func() {
				// Release with a fresh context; the request context may already be cancelled.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if releaseErr := lock.Release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
					logger.WithFields(logrus.Fields{
						"field": "ObtainLock",
						"key":   key,
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}, nil
		}
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, Conflict("resource is busy, try again")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.WithFields(logrus.Fields{
			"field": "ObtainLock",
			"key":   key,
		}).Warn("error obtaining redis lock; using local lock: " + err.Error())
	}
	return localLocks.lock(ctx, key)
}

var localLocks = &keyedMutex{slots: map[string]*lockSlot{}}

type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.drop(key, s)
			})
		}, nil
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) drop(key string, s *lockSlot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}
