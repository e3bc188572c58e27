package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

// ErrEmptyAddress is returned when an operation is called without an address.
var ErrEmptyAddress = errors.New("ratelimit: address is empty")

// Store persists rate-limit entries. GetRateLimit returns goerror.ErrNotFound
// when the address has no entry. ttl is a hint after which the entry is no
// longer relevant and may be dropped by the store.
type Store interface {
	GetRateLimit(ctx context.Context, addr string) (*entity.RateLimitEntry, error)
	SaveRateLimit(ctx context.Context, addr string, e entity.RateLimitEntry, ttl time.Duration) error
	DeleteRateLimit(ctx context.Context, addr string) error
	ListRateLimits(ctx context.Context) ([]entity.RateLimitRecord, error)
}

// Status is the outcome of a Check.
type Status struct {
	Allowed bool
	// Remaining is the failure budget left, or -1 when tracking is disabled.
	Remaining int
	// LockedUntil is the unix time the lockout ends, 0 when not locked.
	LockedUntil int64
	// Locked is set when this Check moved the source into lockout.
	Locked bool
}

// RetryAfter returns the whole seconds left until the lockout ends.
func (s Status) RetryAfter(now time.Time) int64 {
	return max(s.LockedUntil-now.Unix(), 0)
}

// Limiter implements the check / record / clear cycle over a Store.
type Limiter struct {
	store  Store
	locker keylock.Locker
	clock  clock.Clocker
}

// New returns a Limiter.
func New(store Store, locker keylock.Locker, clk clock.Clocker) *Limiter {
	return &Limiter{store: store, locker: locker, clock: clk}
}

func lockKey(addr string) string {
	return "ratelimit:" + addr
}

// Check reports whether addr may attempt a verification. A source whose
// lockout is still running is reported as blocked without touching its
// entry. Otherwise stale failures are pruned and, when the budget is used up,
// the source is locked for the policy's lockout duration.
func (l *Limiter) Check(ctx context.Context, addr string, p entity.RateLimitPolicy) (Status, error) {
	if !p.Enabled {
		return Status{Allowed: true, Remaining: -1}, nil
	}
	if addr == "" {
		return Status{}, ErrEmptyAddress
	}
	p = p.Normalize()

	var st Status
	err := keylock.With(ctx, l.locker, lockKey(addr), func(ctx context.Context) error {
		now := l.clock.Now().Unix()

		e, found, err := l.load(ctx, addr)
		if err != nil {
			return err
		}

		if e.LockedUntil > now {
			st = Status{LockedUntil: e.LockedUntil}
			return nil
		}

		pruned := prune(e, now, p.Window)
		remaining := p.MaxAttempts - len(pruned.Attempts)
		if remaining <= 0 {
			locked := entity.RateLimitEntry{Attempts: []int64{}, LockedUntil: now + int64(p.Lockout/time.Second)}
			if err := l.store.SaveRateLimit(ctx, addr, locked, ttlFor(locked, now, p)); err != nil {
				return err
			}
			slog.WarnContext(ctx, "source address locked out", "address", addr, "locked_until", locked.LockedUntil)
			st = Status{LockedUntil: locked.LockedUntil, Locked: true}
			return nil
		}

		if found && !sameEntry(e, pruned) {
			if err := l.persist(ctx, addr, pruned, now, p); err != nil {
				return err
			}
		}

		st = Status{Allowed: true, Remaining: remaining}
		return nil
	})
	if err != nil {
		return Status{}, fmt.Errorf("ratelimit: check %s: %w", addr, err)
	}

	return st, nil
}

// RecordFailure appends the current time to addr's failures, even while the
// source is locked out. It is a no-op when tracking is disabled.
func (l *Limiter) RecordFailure(ctx context.Context, addr string, p entity.RateLimitPolicy) error {
	if !p.Enabled {
		return nil
	}
	if addr == "" {
		return ErrEmptyAddress
	}
	p = p.Normalize()

	err := keylock.With(ctx, l.locker, lockKey(addr), func(ctx context.Context) error {
		now := l.clock.Now().Unix()

		e, _, err := l.load(ctx, addr)
		if err != nil {
			return err
		}

		e = prune(e, now, p.Window)
		e.Attempts = append(e.Attempts, now)

		return l.store.SaveRateLimit(ctx, addr, e, ttlFor(e, now, p))
	})
	if err != nil {
		return fmt.Errorf("ratelimit: record failure %s: %w", addr, err)
	}

	return nil
}

// Clear removes addr's entry entirely.
func (l *Limiter) Clear(ctx context.Context, addr string) error {
	if addr == "" {
		return ErrEmptyAddress
	}

	err := keylock.With(ctx, l.locker, lockKey(addr), func(ctx context.Context) error {
		return l.store.DeleteRateLimit(ctx, addr)
	})
	if err != nil {
		return fmt.Errorf("ratelimit: clear %s: %w", addr, err)
	}

	return nil
}

// Status reports addr's current standing without changing stored state. It
// does not lock a source whose budget is exhausted; the next Check does.
func (l *Limiter) Status(ctx context.Context, addr string, p entity.RateLimitPolicy) (Status, error) {
	if !p.Enabled {
		return Status{Allowed: true, Remaining: -1}, nil
	}
	if addr == "" {
		return Status{}, ErrEmptyAddress
	}
	p = p.Normalize()

	e, _, err := l.load(ctx, addr)
	if err != nil {
		return Status{}, fmt.Errorf("ratelimit: status %s: %w", addr, err)
	}

	return evaluate(e, l.clock.Now().Unix(), p), nil
}

// Record is one tracked source as reported by List.
type Record struct {
	Address  string
	Attempts int
	Status   Status
}

// List returns every tracked source that is locked or has failures inside
// the current window, ordered as the store returns them.
func (l *Limiter) List(ctx context.Context, p entity.RateLimitPolicy) ([]Record, error) {
	p = p.Normalize()

	records, err := l.store.ListRateLimits(ctx)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: list: %w", err)
	}

	now := l.clock.Now().Unix()
	return lo.FilterMap(records, func(r entity.RateLimitRecord, _ int) (Record, bool) {
		e := prune(r.Entry, now, p.Window)
		if e.LockedUntil == 0 && len(e.Attempts) == 0 {
			return Record{}, false
		}
		return Record{
			Address:  r.Address,
			Attempts: len(e.Attempts),
			Status:   evaluate(r.Entry, now, p),
		}, true
	}), nil
}

func (l *Limiter) load(ctx context.Context, addr string) (entity.RateLimitEntry, bool, error) {
	e, err := l.store.GetRateLimit(ctx, addr)
	if errors.Is(err, goerror.ErrNotFound) {
		return entity.RateLimitEntry{}, false, nil
	}
	if err != nil {
		return entity.RateLimitEntry{}, false, err
	}

	return *e, true, nil
}

func (l *Limiter) persist(ctx context.Context, addr string, e entity.RateLimitEntry, now int64, p entity.RateLimitPolicy) error {
	if e.LockedUntil == 0 && len(e.Attempts) == 0 {
		return l.store.DeleteRateLimit(ctx, addr)
	}
	return l.store.SaveRateLimit(ctx, addr, e, ttlFor(e, now, p))
}

func evaluate(e entity.RateLimitEntry, now int64, p entity.RateLimitPolicy) Status {
	if e.LockedUntil > now {
		return Status{LockedUntil: e.LockedUntil}
	}

	remaining := p.MaxAttempts - len(prune(e, now, p.Window).Attempts)
	return Status{Allowed: remaining > 0, Remaining: max(remaining, 0)}
}

// prune drops failures older than window and an expired lockout.
func prune(e entity.RateLimitEntry, now int64, window time.Duration) entity.RateLimitEntry {
	cutoff := now - int64(window/time.Second)

	out := entity.RateLimitEntry{
		Attempts: lo.Filter(e.Attempts, func(ts int64, _ int) bool {
			return ts > cutoff
		}),
		LockedUntil: e.LockedUntil,
	}
	if out.LockedUntil <= now {
		out.LockedUntil = 0
	}
	return out
}

func sameEntry(a, b entity.RateLimitEntry) bool {
	return a.LockedUntil == b.LockedUntil && len(a.Attempts) == len(b.Attempts)
}

// ttlFor returns how long e stays relevant: until its lockout ends or its
// newest failure leaves the window, whichever is later.
func ttlFor(e entity.RateLimitEntry, now int64, p entity.RateLimitPolicy) time.Duration {
	ttl := p.Window
	if e.LockedUntil > now {
		ttl = max(ttl, time.Duration(e.LockedUntil-now)*time.Second)
	}
	return ttl
}
