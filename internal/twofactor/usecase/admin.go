package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/twofactor/backupcode"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
	"github.com/shandysiswandi/otpgate/internal/twofactor/ratelimit"
)

type GenerateKeyInput struct {
	Principal string `validate:"required,principal"`
	Mode      string `validate:"omitempty,otpmode"`
	Step      int64  `validate:"gte=0,lte=300"`
}

type GenerateKeyOutput struct {
	Secret string
	URI    string
	Mode   otp.Mode
	Step   int64
}

// GenerateKey enrols the principal with a fresh random secret. A HOTP
// enrolment restarts the counter at zero.
func (s *Usecase) GenerateKey(ctx context.Context, in GenerateKeyInput) (*GenerateKeyOutput, error) {
	ctx, span := s.startSpan(ctx, "GenerateKey")
	defer span.End()

	in.Principal = strings.TrimSpace(in.Principal)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	mode := otp.ParseMode(in.Mode)
	step := otp.NormalizeStep(in.Step)

	key, err := s.provisioner.Generate(in.Principal, "", mode, step, 0)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate otp key", "principal", in.Principal, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.saveFactor(ctx, entity.Factor{
		Principal: in.Principal,
		Secret:    key.Secret,
		Mode:      mode,
		Step:      step,
	}); err != nil {
		return nil, err
	}

	return &GenerateKeyOutput{Secret: key.Secret, URI: key.URI, Mode: mode, Step: step}, nil
}

type SaveFactorInput struct {
	Principal string `validate:"required,principal"`
	Secret    string `validate:"required,base32,min=16,max=128"`
	Mode      string `validate:"omitempty,otpmode"`
	Step      int64  `validate:"gte=0,lte=300"`
	Counter   uint64
}

// SaveFactor stores an externally provisioned secret.
func (s *Usecase) SaveFactor(ctx context.Context, in SaveFactorInput) error {
	ctx, span := s.startSpan(ctx, "SaveFactor")
	defer span.End()

	in.Principal = strings.TrimSpace(in.Principal)
	in.Secret = strings.ToUpper(strings.TrimSpace(in.Secret))
	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	return s.saveFactor(ctx, entity.Factor{
		Principal: in.Principal,
		Secret:    in.Secret,
		Mode:      otp.ParseMode(in.Mode),
		Step:      otp.NormalizeStep(in.Step),
		Counter:   in.Counter,
	})
}

func (s *Usecase) saveFactor(ctx context.Context, f entity.Factor) error {
	err := keylock.With(ctx, s.locker, backupcode.LockKey(f.Principal), func(ctx context.Context) error {
		return s.repoPrincipal.SaveFactor(ctx, f)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo save factor", "principal", f.Principal, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "second factor saved", "principal", f.Principal, "mode", string(f.Mode))
	return nil
}

type PrincipalInput struct {
	Principal string `validate:"required,principal"`
}

// DeleteFactor removes the principal's secret and backup codes.
func (s *Usecase) DeleteFactor(ctx context.Context, in PrincipalInput) error {
	ctx, span := s.startSpan(ctx, "DeleteFactor")
	defer span.End()

	if err := s.validatePrincipal(&in); err != nil {
		return err
	}

	err := keylock.With(ctx, s.locker, backupcode.LockKey(in.Principal), func(ctx context.Context) error {
		return s.repoPrincipal.DeleteFactor(ctx, in.Principal)
	})
	if errors.Is(err, goerror.ErrNotFound) {
		return goerror.NewBusiness("principal has no second factor", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo delete factor", "principal", in.Principal, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "second factor deleted", "principal", in.Principal)
	return nil
}

type RegenerateBackupCodesInput struct {
	Principal string `validate:"required,principal"`
	Count     int    `validate:"gte=0,lte=10"`
}

// RegenerateBackupCodes replaces the principal's backup codes. The returned
// plaintexts are never retrievable again. A zero count issues the maximum.
func (s *Usecase) RegenerateBackupCodes(ctx context.Context, in RegenerateBackupCodesInput) ([]string, error) {
	ctx, span := s.startSpan(ctx, "RegenerateBackupCodes")
	defer span.End()

	in.Principal = strings.TrimSpace(in.Principal)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}
	if in.Count == 0 {
		in.Count = 10
	}

	if err := s.ensureFactorExists(ctx, in.Principal); err != nil {
		return nil, err
	}

	codes, err := s.backupCodes.Generate(ctx, in.Principal, in.Count)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate backup codes", "principal", in.Principal, "error", err)
		return nil, goerror.NewServer(err)
	}

	plains := make([]string, 0, len(codes))
	for _, c := range codes {
		plains = append(plains, c.Plain)
	}

	slog.InfoContext(ctx, "backup codes regenerated", "principal", in.Principal, "count", len(plains))
	return plains, nil
}

// BackupCodeCount returns how many unused backup codes the principal has.
func (s *Usecase) BackupCodeCount(ctx context.Context, in PrincipalInput) (int, error) {
	ctx, span := s.startSpan(ctx, "BackupCodeCount")
	defer span.End()

	if err := s.validatePrincipal(&in); err != nil {
		return 0, err
	}

	n, err := s.backupCodes.Count(ctx, in.Principal)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count backup codes", "principal", in.Principal, "error", err)
		return 0, goerror.NewServer(err)
	}

	return n, nil
}

// ClearBackupCodes revokes all of the principal's backup codes.
func (s *Usecase) ClearBackupCodes(ctx context.Context, in PrincipalInput) error {
	ctx, span := s.startSpan(ctx, "ClearBackupCodes")
	defer span.End()

	if err := s.validatePrincipal(&in); err != nil {
		return err
	}

	if err := s.backupCodes.Clear(ctx, in.Principal); err != nil {
		slog.ErrorContext(ctx, "failed to clear backup codes", "principal", in.Principal, "error", err)
		return goerror.NewServer(err)
	}

	return nil
}

type AddressInput struct {
	Address string `validate:"required,ip"`
}

type RateLimitStatus struct {
	Address     string
	Allowed     bool
	Remaining   int
	Attempts    int
	LockedUntil int64
	RetryAfter  int64
}

// RateLimitStatus reports one source's standing without changing it.
func (s *Usecase) RateLimitStatus(ctx context.Context, in AddressInput) (*RateLimitStatus, error) {
	ctx, span := s.startSpan(ctx, "RateLimitStatus")
	defer span.End()

	in.Address = strings.TrimSpace(in.Address)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	policy := s.settings.Snapshot().RateLimit
	st, err := s.limiter.Status(ctx, in.Address, policy)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read rate limit status", "address", in.Address, "error", err)
		return nil, goerror.NewServer(err)
	}

	return s.toRateLimitStatus(in.Address, st, policy), nil
}

// RateLimitList returns every source with recent failures or a running lockout.
func (s *Usecase) RateLimitList(ctx context.Context) ([]RateLimitStatus, error) {
	ctx, span := s.startSpan(ctx, "RateLimitList")
	defer span.End()

	policy := s.settings.Snapshot().RateLimit
	records, err := s.limiter.List(ctx, policy)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list rate limits", "error", err)
		return nil, goerror.NewServer(err)
	}

	out := make([]RateLimitStatus, 0, len(records))
	for _, r := range records {
		st := s.toRateLimitStatus(r.Address, r.Status, policy)
		st.Attempts = r.Attempts
		out = append(out, *st)
	}

	return out, nil
}

// ClearRateLimit forgets a source's failures and lifts its lockout.
func (s *Usecase) ClearRateLimit(ctx context.Context, in AddressInput) error {
	ctx, span := s.startSpan(ctx, "ClearRateLimit")
	defer span.End()

	in.Address = strings.TrimSpace(in.Address)
	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	if err := s.limiter.Clear(ctx, in.Address); err != nil {
		slog.ErrorContext(ctx, "failed to clear rate limit", "address", in.Address, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "rate limit cleared", "address", in.Address)
	return nil
}

func (s *Usecase) toRateLimitStatus(addr string, st ratelimit.Status, p entity.RateLimitPolicy) *RateLimitStatus {
	out := &RateLimitStatus{
		Address:     addr,
		Allowed:     st.Allowed,
		Remaining:   st.Remaining,
		LockedUntil: st.LockedUntil,
		RetryAfter:  st.RetryAfter(s.clock.Now()),
	}
	if p.Enabled && st.LockedUntil == 0 {
		out.Attempts = p.Normalize().MaxAttempts - st.Remaining
	}
	return out
}

func (s *Usecase) validatePrincipal(in *PrincipalInput) error {
	in.Principal = strings.TrimSpace(in.Principal)
	if err := s.validator.Validate(*in); err != nil {
		return goerror.NewInvalidInput(err)
	}
	return nil
}

func (s *Usecase) ensureFactorExists(ctx context.Context, principal string) error {
	f, err := s.repoPrincipal.GetFactor(ctx, principal)
	if errors.Is(err, goerror.ErrNotFound) || (err == nil && !f.Configured()) {
		return goerror.NewBusiness("principal has no second factor", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get factor", "principal", principal, "error", err)
		return goerror.NewServer(err)
	}
	return nil
}
