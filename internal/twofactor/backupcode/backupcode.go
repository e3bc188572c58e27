package backupcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/mfa"
)

// ErrEmptyPrincipal is returned when an operation is called without a principal.
var ErrEmptyPrincipal = errors.New("backupcode: principal is empty")

// Store reads and replaces a principal's stored code hashes. A principal
// without codes yields an empty slice and no error.
type Store interface {
	GetBackupCodes(ctx context.Context, principal string) ([]string, error)
	SaveBackupCodes(ctx context.Context, principal string, hashes []string) error
}

// Code is a freshly generated backup code. Plain is shown once and never stored.
type Code struct {
	Plain string
	Hash  string
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid bool
	// Consumed is set when a stored code was removed by this call.
	Consumed bool
	// Remaining is the number of unused codes left after this call.
	Remaining int
}

// Manager owns the backup code lifecycle of every principal.
type Manager struct {
	store     Store
	locker    keylock.Locker
	generator mfa.RecoveryCodeGenerator
	hasher    hash.Hash
}

// New returns a Manager. hasher must be keyed; codes carry too little
// entropy to be stored under a plain digest.
func New(store Store, locker keylock.Locker, generator mfa.RecoveryCodeGenerator, hasher hash.Hash) *Manager {
	return &Manager{store: store, locker: locker, generator: generator, hasher: hasher}
}

// LockKey is the keylock key guarding a principal's configuration. It is
// shared with every other mutation of the same principal.
func LockKey(principal string) string {
	return "principal:" + principal
}

// Generate replaces the principal's codes with a new batch. count is clamped
// to 1..mfa.MaxCodes.
func (m *Manager) Generate(ctx context.Context, principal string, count int) ([]Code, error) {
	if principal == "" {
		return nil, ErrEmptyPrincipal
	}
	count = min(max(count, 1), mfa.MaxCodes)

	plains, err := m.generator.Generate(count)
	if err != nil {
		return nil, fmt.Errorf("backupcode: generate: %w", err)
	}

	codes := make([]Code, 0, len(plains))
	hashes := make([]string, 0, len(plains))
	for _, p := range plains {
		h, err := m.hasher.Hash(mfa.Normalize(p))
		if err != nil {
			return nil, fmt.Errorf("backupcode: hash: %w", err)
		}
		codes = append(codes, Code{Plain: p, Hash: string(h)})
		hashes = append(hashes, string(h))
	}

	err = keylock.With(ctx, m.locker, LockKey(principal), func(ctx context.Context) error {
		return m.store.SaveBackupCodes(ctx, principal, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("backupcode: save %s: %w", principal, err)
	}

	return codes, nil
}

// Verify checks submitted against the principal's codes and consumes the
// match. Input that is not shaped like a backup code is rejected without
// touching the store. Every stored hash is compared so the time taken does
// not reveal the matching position.
func (m *Manager) Verify(ctx context.Context, principal, submitted string) (VerifyResult, error) {
	if principal == "" {
		return VerifyResult{}, ErrEmptyPrincipal
	}
	if !mfa.LooksLikeCode(submitted) {
		return VerifyResult{}, nil
	}
	normalized := mfa.Normalize(submitted)

	var res VerifyResult
	err := keylock.With(ctx, m.locker, LockKey(principal), func(ctx context.Context) error {
		hashes, err := m.store.GetBackupCodes(ctx, principal)
		if err != nil {
			return err
		}

		match := -1
		for i, h := range hashes {
			if m.hasher.Verify(h, normalized) && match < 0 {
				match = i
			}
		}
		if match < 0 {
			res = VerifyResult{Remaining: len(hashes)}
			return nil
		}

		remaining := slices.Delete(slices.Clone(hashes), match, match+1)
		if err := m.store.SaveBackupCodes(ctx, principal, remaining); err != nil {
			return err
		}

		slog.InfoContext(ctx, "backup code consumed", "principal", principal, "remaining", len(remaining))
		res = VerifyResult{Valid: true, Consumed: true, Remaining: len(remaining)}
		return nil
	})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("backupcode: verify %s: %w", principal, err)
	}

	return res, nil
}

// Count returns how many unused codes the principal has.
func (m *Manager) Count(ctx context.Context, principal string) (int, error) {
	if principal == "" {
		return 0, ErrEmptyPrincipal
	}

	hashes, err := m.store.GetBackupCodes(ctx, principal)
	if err != nil {
		return 0, fmt.Errorf("backupcode: count %s: %w", principal, err)
	}

	return len(hashes), nil
}

// Clear revokes all of the principal's codes.
func (m *Manager) Clear(ctx context.Context, principal string) error {
	if principal == "" {
		return ErrEmptyPrincipal
	}

	err := keylock.With(ctx, m.locker, LockKey(principal), func(ctx context.Context) error {
		return m.store.SaveBackupCodes(ctx, principal, []string{})
	})
	if err != nil {
		return fmt.Errorf("backupcode: clear %s: %w", principal, err)
	}

	return nil
}
