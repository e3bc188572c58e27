package keylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// ErrLockTimeout is returned when a Redis lock could not be acquired within
// the configured wait.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

var errBusy = errors.New("keylock: busy")

// releaseScript deletes the lock only if it still carries our token, so an
// expired-and-reacquired lock is never released by its previous owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultLockTTL  = 5 * time.Second
	defaultLockWait = 2 * time.Second
	defaultBackoff  = 10 * time.Millisecond
	maxBackoff      = 200 * time.Millisecond
)

// Redis is a Locker shared by every process connected to the same server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// Option configures a Redis locker.
type Option func(*Redis)

// WithTTL sets how long a lock survives if its owner never releases it.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithWait sets how long Lock keeps retrying before ErrLockTimeout.
func WithWait(wait time.Duration) Option {
	return func(r *Redis) {
		if wait > 0 {
			r.wait = wait
		}
	}
}

// NewRedis returns a Redis-backed Locker. Keys are stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string, opts ...Option) *Redis {
	r := &Redis{
		client: client,
		prefix: prefix,
		ttl:    defaultLockTTL,
		wait:   defaultLockWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock acquires key with SET NX PX, retrying with exponential backoff until
// the configured wait elapses.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	fk := r.prefix + key
	token := uuid.NewString()

	backoff := retry.WithMaxDuration(r.wait, retry.WithCappedDuration(maxBackoff, retry.NewExponential(defaultBackoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := r.client.SetNX(ctx, fk, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if !acquired {
			return retry.RetryableError(errBusy)
		}
		return nil
	})
	if errors.Is(err, errBusy) {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	if err != nil {
		return nil, fmt.Errorf("keylock: acquire %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()

			if err := releaseScript.Run(ctx, r.client, []string{fk}, token).Err(); err != nil {
				slog.WarnContext(ctx, "failed to release redis lock", "key", key, "error", err)
			}
		})
	}, nil
}
