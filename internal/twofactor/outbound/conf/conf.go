// Package conf builds the global two-factor settings from the application
// configuration. Every Snapshot reads the live configuration, so a reloaded
// config file takes effect on the next request.
package conf

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

// Configuration keys under the twofactor section.
const (
	KeyEnabled          = "twofactor.enabled"
	KeyAllowlistEnabled = "twofactor.ip_whitelist_enabled"
	KeyAllowlist        = "twofactor.ip_whitelist"
	KeyRateLimitEnabled = "twofactor.rate_limit_enabled"
	KeyMaxAttempts      = "twofactor.rate_limit_max_attempts"
	KeyWindow           = "twofactor.rate_limit_window"
	KeyLockout          = "twofactor.rate_limit_lockout"
	KeyMinValidTime     = "twofactor.min_valid_time"
)

type Settings struct {
	cfg config.Config
}

func NewSettings(cfg config.Config) *Settings {
	return &Settings{cfg: cfg}
}

// Snapshot returns the current settings with rate-limit values clamped to
// their allowed ranges.
func (s *Settings) Snapshot() entity.Settings {
	minValid := s.cfg.GetInt64(KeyMinValidTime)
	if minValid <= 0 {
		minValid = entity.DefaultMinValidTime
	}

	return entity.Settings{
		Enabled:          s.cfg.GetBool(KeyEnabled),
		AllowlistEnabled: s.cfg.GetBool(KeyAllowlistEnabled),
		Allowlist: lo.Compact(lo.Map(s.cfg.GetArray(KeyAllowlist), func(e string, _ int) string {
			return strings.TrimSpace(e)
		})),
		RateLimit: entity.RateLimitPolicy{
			Enabled:     s.cfg.GetBool(KeyRateLimitEnabled),
			MaxAttempts: s.cfg.GetInt(KeyMaxAttempts),
			Window:      s.cfg.GetSecond(KeyWindow),
			Lockout:     s.cfg.GetSecond(KeyLockout),
		}.Normalize(),
		MinValidTime: minValid,
	}
}
