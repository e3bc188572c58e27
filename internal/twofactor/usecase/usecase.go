package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/audit"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"github.com/shandysiswandi/otpgate/internal/twofactor/backupcode"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
	"github.com/shandysiswandi/otpgate/internal/twofactor/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/twofactor/timeguard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// PluginName is the name the orchestrator registers under.
const PluginName = "otp"

// MessageInvalid is the only failure message a verification ever returns.
const MessageInvalid = "invalid one-time password or backup code"

type repoPrincipal interface {
	GetFactor(ctx context.Context, principal string) (*entity.Factor, error)
	SaveFactor(ctx context.Context, f entity.Factor) error
	UpdateCounter(ctx context.Context, principal string, counter uint64) error
	DeleteFactor(ctx context.Context, principal string) error
}

type settingsSource interface {
	Snapshot() entity.Settings
}

type rateLimiter interface {
	Check(ctx context.Context, addr string, p entity.RateLimitPolicy) (ratelimit.Status, error)
	RecordFailure(ctx context.Context, addr string, p entity.RateLimitPolicy) error
	Clear(ctx context.Context, addr string) error
	Status(ctx context.Context, addr string, p entity.RateLimitPolicy) (ratelimit.Status, error)
	List(ctx context.Context, p entity.RateLimitPolicy) ([]ratelimit.Record, error)
}

type backupCodes interface {
	Generate(ctx context.Context, principal string, count int) ([]backupcode.Code, error)
	Verify(ctx context.Context, principal, submitted string) (backupcode.VerifyResult, error)
	Count(ctx context.Context, principal string) (int, error)
	Clear(ctx context.Context, principal string) error
}

type timeGuard interface {
	Check(minValid int64) timeguard.Result
}

type auditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type Usecase struct {
	repoPrincipal repoPrincipal
	settings      settingsSource
	limiter       rateLimiter
	backupCodes   backupCodes
	timeGuard     timeGuard
	audit         auditRecorder
	locker        keylock.Locker
	provisioner   *otp.Provisioner
	validator     validator.Validator
	clock         clock.Clocker
	ins           instrument.Instrumentation

	verifications metric.Int64Counter
}

type Dependency struct {
	RepoPrincipal repoPrincipal
	Settings      settingsSource
	RateLimiter   rateLimiter
	BackupCodes   backupCodes
	TimeGuard     timeGuard
	Audit         auditRecorder
	Locker        keylock.Locker
	Provisioner   *otp.Provisioner
	Validator     validator.Validator
	Clock         clock.Clocker
	Instrument    instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	s := &Usecase{
		repoPrincipal: dep.RepoPrincipal,
		settings:      dep.Settings,
		limiter:       dep.RateLimiter,
		backupCodes:   dep.BackupCodes,
		timeGuard:     dep.TimeGuard,
		audit:         dep.Audit,
		locker:        dep.Locker,
		provisioner:   dep.Provisioner,
		validator:     dep.Validator,
		clock:         dep.Clock,
		ins:           dep.Instrument,
	}

	counter, err := s.ins.Meter("twofactor.usecase").Int64Counter(
		"twofactor.verifications",
		metric.WithDescription("Second-factor checks and verifications by outcome"),
	)
	if err != nil {
		slog.Error("failed to create twofactor verification counter", "error", err)
	}
	s.verifications = counter

	return s
}

// Name implements authplugin.Plugin.
func (s *Usecase) Name() string {
	return PluginName
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("twofactor.usecase").Start(ctx, name)
}

func (s *Usecase) countOutcome(ctx context.Context, stage string, o entity.Outcome) {
	if s.verifications == nil {
		return
	}
	s.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", o.String()),
	))
}

func (s *Usecase) record(ctx context.Context, ev audit.Event) {
	if s.audit == nil {
		return
	}
	ev.Time = s.clock.Now().UTC()
	s.audit.Record(ctx, ev)
}
