// Package file keeps rate-limit state in a single JSON document on disk, for
// deployments that run one process without Redis.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

type record struct {
	entity.RateLimitEntry
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// RateLimitFile stores entries keyed by source address. Every mutation
// rewrites the whole document through a temporary file and a rename, so a
// crash never leaves a truncated state file behind.
type RateLimitFile struct {
	mu    sync.Mutex
	path  string
	clock clock.Clocker
}

func NewRateLimitFile(path string, clk clock.Clocker) *RateLimitFile {
	return &RateLimitFile{path: path, clock: clk}
}

func (s *RateLimitFile) GetRateLimit(_ context.Context, addr string) (*entity.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, err
	}

	r, ok := state[addr]
	if !ok || s.expired(r) {
		return nil, goerror.ErrNotFound
	}

	e := r.RateLimitEntry
	return &e, nil
}

func (s *RateLimitFile) SaveRateLimit(_ context.Context, addr string, e entity.RateLimitEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	r := record{RateLimitEntry: e}
	if ttl > 0 {
		r.ExpiresAt = s.clock.Now().Add(ttl).Unix()
	}
	state[addr] = r

	return s.store(state)
}

func (s *RateLimitFile) DeleteRateLimit(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := state[addr]; !ok {
		return nil
	}
	delete(state, addr)

	return s.store(state)
}

func (s *RateLimitFile) ListRateLimits(context.Context) ([]entity.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, err
	}

	live := lo.OmitBy(state, func(_ string, r record) bool { return s.expired(r) })
	return lo.MapToSlice(live, func(addr string, r record) entity.RateLimitRecord {
		return entity.RateLimitRecord{Address: addr, Entry: r.RateLimitEntry}
	}), nil
}

func (s *RateLimitFile) expired(r record) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt <= s.clock.Now().Unix()
}

// load reads the document. A missing or empty file is an empty state.
func (s *RateLimitFile) load() (map[string]record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(raw) == 0) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}

	state := map[string]record{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", s.path, err)
	}

	return state, nil
}

// store drops expired records and atomically replaces the document.
func (s *RateLimitFile) store(state map[string]record) error {
	state = lo.OmitBy(state, func(_ string, r record) bool { return s.expired(r) })

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}

	return nil
}
