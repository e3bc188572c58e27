package cache

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/testredis"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

func TestCachePrincipal(t *testing.T) {
	client := testredis.Start(t)
	s := NewCache(client, instrument.NewNoop())
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		if _, err := s.GetFactor(ctx, "ghost"); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("GetFactor() error = %v, want ErrNotFound", err)
		}
		if err := s.UpdateCounter(ctx, "ghost", 3); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("UpdateCounter() error = %v, want ErrNotFound", err)
		}
		if err := s.DeleteFactor(ctx, "ghost"); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("DeleteFactor() error = %v, want ErrNotFound", err)
		}
		if n := client.Exists(ctx, principalKey("ghost")).Val(); n != 0 {
			t.Fatalf("UpdateCounter() must not create a section")
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		// Arrange
		in := entity.Factor{Principal: "router", Secret: "JBSWY3DPEHPK3PXP", Mode: otp.ModeHOTP, Step: 0, Counter: 41}

		// Act
		if err := s.SaveFactor(ctx, in); err != nil {
			t.Fatalf("SaveFactor() error = %v", err)
		}
		if err := s.SaveBackupCodes(ctx, "router", []string{"h1", "h2"}); err != nil {
			t.Fatalf("SaveBackupCodes() error = %v", err)
		}
		if err := s.UpdateCounter(ctx, "router", 42); err != nil {
			t.Fatalf("UpdateCounter() error = %v", err)
		}
		got, err := s.GetFactor(ctx, "router")

		// Assert
		if err != nil {
			t.Fatalf("GetFactor() error = %v", err)
		}
		if got.Secret != in.Secret || got.Mode != otp.ModeHOTP || got.Step != 30 || got.Counter != 42 {
			t.Fatalf("unexpected factor %+v", got)
		}
		if !slices.Equal(got.BackupCodes, []string{"h1", "h2"}) {
			t.Fatalf("backup codes = %v", got.BackupCodes)
		}

		fields, err := client.HGetAll(ctx, "twofactor:principal:router").Result()
		if err != nil {
			t.Fatalf("hgetall: %v", err)
		}
		if fields["key"] != in.Secret || fields["type"] != "hotp" || fields["counter"] != "42" || fields["backup_codes"] != `["h1","h2"]` {
			t.Fatalf("unexpected hash layout %v", fields)
		}
	})

	t.Run("SaveFactorKeepsBackupCodes", func(t *testing.T) {
		if err := s.SaveBackupCodes(ctx, "keep", []string{"h"}); err != nil {
			t.Fatalf("SaveBackupCodes() error = %v", err)
		}
		if err := s.SaveFactor(ctx, entity.Factor{Principal: "keep", Secret: "JBSWY3DPEHPK3PXP", Mode: otp.ModeTOTP}); err != nil {
			t.Fatalf("SaveFactor() error = %v", err)
		}

		codes, err := s.GetBackupCodes(ctx, "keep")
		if err != nil || len(codes) != 1 {
			t.Fatalf("GetBackupCodes() = %v, %v", codes, err)
		}

		if err := s.SaveBackupCodes(ctx, "keep", nil); err != nil {
			t.Fatalf("SaveBackupCodes(nil) error = %v", err)
		}
		if codes, _ := s.GetBackupCodes(ctx, "keep"); len(codes) != 0 {
			t.Fatalf("codes after clear = %v", codes)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.SaveFactor(ctx, entity.Factor{Principal: "gone", Secret: "JBSWY3DPEHPK3PXP"}); err != nil {
			t.Fatalf("SaveFactor() error = %v", err)
		}
		if err := s.DeleteFactor(ctx, "gone"); err != nil {
			t.Fatalf("DeleteFactor() error = %v", err)
		}
		if _, err := s.GetFactor(ctx, "gone"); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("GetFactor() after delete error = %v", err)
		}
	})

	t.Run("CorruptCounter", func(t *testing.T) {
		client.HSet(ctx, principalKey("bad"), "key", "JBSWY3DPEHPK3PXP", "counter", "minus-one")

		if _, err := s.GetFactor(ctx, "bad"); err == nil || errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("GetFactor() error = %v, want parse error", err)
		}
	})
}

func TestCacheRateLimit(t *testing.T) {
	client := testredis.Start(t)
	s := NewCache(client, instrument.NewNoop())
	ctx := context.Background()

	if _, err := s.GetRateLimit(ctx, "192.0.2.1"); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("GetRateLimit() error = %v, want ErrNotFound", err)
	}

	entry := entity.RateLimitEntry{Attempts: []int64{10, 20}}
	if err := s.SaveRateLimit(ctx, "192.0.2.1", entry, time.Minute); err != nil {
		t.Fatalf("SaveRateLimit() error = %v", err)
	}
	if err := s.SaveRateLimit(ctx, "2001:db8::1", entity.RateLimitEntry{LockedUntil: 99}, time.Minute); err != nil {
		t.Fatalf("SaveRateLimit() error = %v", err)
	}

	got, err := s.GetRateLimit(ctx, "192.0.2.1")
	if err != nil {
		t.Fatalf("GetRateLimit() error = %v", err)
	}
	if !slices.Equal(got.Attempts, entry.Attempts) {
		t.Fatalf("attempts = %v", got.Attempts)
	}

	ttl, err := client.TTL(ctx, "twofactor:ratelimit:192.0.2.1").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}

	list, err := s.ListRateLimits(ctx)
	if err != nil {
		t.Fatalf("ListRateLimits() error = %v", err)
	}
	addrs := make([]string, 0, len(list))
	for _, r := range list {
		addrs = append(addrs, r.Address)
	}
	slices.Sort(addrs)
	if !slices.Equal(addrs, []string{"192.0.2.1", "2001:db8::1"}) {
		t.Fatalf("listed addresses = %v", addrs)
	}

	if err := s.DeleteRateLimit(ctx, "192.0.2.1"); err != nil {
		t.Fatalf("DeleteRateLimit() error = %v", err)
	}
	if _, err := s.GetRateLimit(ctx, "192.0.2.1"); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("GetRateLimit() after delete error = %v", err)
	}
}
