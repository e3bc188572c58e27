package keylock

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyKey is returned when Lock is called with an empty key.
var ErrEmptyKey = errors.New("keylock: key is empty")

// Unlock releases a lock obtained from Locker.Lock. It is safe to call more
// than once.
type Unlock func()

// Locker grants exclusive access to a key until the returned Unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// With runs fn while holding key.
func With(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	return fn(ctx)
}

// Local is an in-process Locker. Waiting honours context cancellation.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *Local) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}

	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}
