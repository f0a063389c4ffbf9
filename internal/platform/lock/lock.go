// Package lock serializes work on a key, across instances when Redis is configured.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the key stayed held for the whole wait.
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held key.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains exclusive locks on keys.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

const (
	keyPrefix     = "fma:lock:"
	retryInterval = 100 * time.Millisecond
)

// RedisLocker uses redislock so that saves of the same key never overlap between instances.
type RedisLocker struct {
	client  *redislock.Client
	maxWait time.Duration
}

// NewRedisLocker creates a locker that waits up to maxWait for a held key.
func NewRedisLocker(rdb *redis.Client, maxWait time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), maxWait: maxWait}
}

// Obtain tries to obtain the lock, retrying until maxWait elapses.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	retries := int(l.maxWait / retryInterval)
	lk, err := l.client.Obtain(ctx, keyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryInterval), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return redisLock{lk}, nil
}

type redisLock struct {
	lk *redislock.Lock
}

func (r redisLock) Release(ctx context.Context) error {
	err := r.lk.Release(ctx)
	if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("failed to release lock %s: %w", r.lk.Key(), err)
	}
	return nil
}

// LocalLocker serializes keys within one process. A key's entry lives only while some caller
// holds or waits for it.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*localEntry)}
}

// Obtain blocks until the key is free or ctx is done. ttl is ignored.
func (l *LocalLocker) Obtain(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &localLock{locker: l, key: key, entry: e}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}
}

func (l *LocalLocker) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.keys[key] == e {
		delete(l.keys, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

type localLock struct {
	locker *LocalLocker
	key    string
	entry  *localEntry
	once   sync.Once
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		<-l.entry.ch
		l.locker.unref(l.key, l.entry)
	})
	return nil
}
