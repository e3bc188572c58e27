package twofactor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/audit"
	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/mfa"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/twofactor/backupcode"
	"github.com/shandysiswandi/otpgate/internal/twofactor/inbound"
	"github.com/shandysiswandi/otpgate/internal/twofactor/outbound/cache"
	"github.com/shandysiswandi/otpgate/internal/twofactor/outbound/conf"
	"github.com/shandysiswandi/otpgate/internal/twofactor/outbound/file"
	"github.com/shandysiswandi/otpgate/internal/twofactor/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/twofactor/timeguard"
	"github.com/shandysiswandi/otpgate/internal/twofactor/usecase"
)

// Rate-limit store drivers selectable with twofactor.store.rate_limit.driver.
const (
	StoreRedis = "redis"
	StoreFile  = "file"
)

var errFilePathRequired = errors.New("twofactor: rate limit state file path is required")

type Dependency struct {
	CacheConn       redis.UniversalClient      `validate:"required"`
	Router          *router.Router             `validate:"required"`
	Config          config.Config              `validate:"required"`
	Instrument      instrument.Instrumentation `validate:"required"`
	Validator       validator.Validator        `validate:"required"`
	Clock           clock.Clocker              `validate:"required"`
	Locker          keylock.Locker             `validate:"required"`
	BackupCodeHash  hash.Hash                  `validate:"required"`
	MFARecoveryCode mfa.RecoveryCodeGenerator  `validate:"required"`
	Provisioner     *otp.Provisioner           `validate:"required"`
	Audit           *audit.Recorder            `validate:"required"`
}

// New wires the second-factor plugin and registers its HTTP surface. The
// returned plugin is the one registered with the orchestrator registry.
func New(dep Dependency) (authplugin.Plugin, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	warnInvalidAllowlist(dep)

	store := cache.NewCache(dep.CacheConn, dep.Instrument)

	limitStore, err := rateLimitStore(dep, store)
	if err != nil {
		return nil, err
	}

	uc := usecase.New(usecase.Dependency{
		RepoPrincipal: store,
		Settings:      conf.NewSettings(dep.Config),
		RateLimiter:   ratelimit.New(limitStore, dep.Locker, dep.Clock),
		BackupCodes:   backupcode.New(store, dep.Locker, dep.MFARecoveryCode, dep.BackupCodeHash),
		TimeGuard:     timeguard.New(dep.Clock),
		Audit:         dep.Audit,
		Locker:        dep.Locker,
		Provisioner:   dep.Provisioner,
		Validator:     dep.Validator,
		Clock:         dep.Clock,
		Instrument:    dep.Instrument,
	})

	registry, err := authplugin.NewRegistry(uc)
	if err != nil {
		return nil, err
	}

	inbound.RegisterHTTPEndpoint(dep.Router, uc, registry, dep.Config.GetString("twofactor.admin.token"))

	return uc, nil
}

func rateLimitStore(dep Dependency, store *cache.Cache) (ratelimit.Store, error) {
	driver := strings.TrimSpace(dep.Config.GetString("twofactor.store.rate_limit.driver"))
	switch driver {
	case "", StoreRedis:
		return store, nil
	case StoreFile:
		path := strings.TrimSpace(dep.Config.GetString("twofactor.store.rate_limit.file_path"))
		if path == "" {
			return nil, errFilePathRequired
		}
		return file.NewRateLimitFile(path, dep.Clock), nil
	default:
		return nil, fmt.Errorf("twofactor: unknown rate limit store %q", driver)
	}
}

type allowlistEntry struct {
	Entry string `validate:"required,netentry"`
}

// warnInvalidAllowlist logs configured entries the matcher will skip.
func warnInvalidAllowlist(dep Dependency) {
	for _, e := range dep.Config.GetArray(conf.KeyAllowlist) {
		if err := dep.Validator.Validate(allowlistEntry{Entry: e}); err != nil {
			slog.Warn("allowlist entry ignored", "entry", e, "error", err)
		}
	}
}
