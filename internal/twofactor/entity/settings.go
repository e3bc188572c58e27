package entity

import "time"

// Default rate limit values used when configuration is absent or out of range.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 60 * time.Second
	DefaultLockout     = 300 * time.Second

	// DefaultMinValidTime is 2024-01-01T00:00:00Z. A clock earlier than this
	// is treated as never having been set.
	DefaultMinValidTime int64 = 1704067200
)

// RateLimitPolicy configures per-source failure tracking.
type RateLimitPolicy struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// Settings is the global configuration snapshot taken once per request.
type Settings struct {
	Enabled          bool
	AllowlistEnabled bool
	Allowlist        []string
	RateLimit        RateLimitPolicy
	MinValidTime     int64
}

const (
	maxAttemptsLimit = 100
	maxWindow        = 3600 * time.Second
	maxLockout       = 86400 * time.Second
)

// Normalize replaces out-of-range values with their defaults: attempts must
// be within 1..100, the window within 1s..1h and the lockout within 1s..24h.
func (p RateLimitPolicy) Normalize() RateLimitPolicy {
	if p.MaxAttempts < 1 || p.MaxAttempts > maxAttemptsLimit {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Window < time.Second || p.Window > maxWindow {
		p.Window = DefaultWindow
	}
	if p.Lockout < time.Second || p.Lockout > maxLockout {
		p.Lockout = DefaultLockout
	}
	return p
}
