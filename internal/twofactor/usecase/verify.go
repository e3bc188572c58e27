package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/allowlist"
	"github.com/shandysiswandi/otpgate/internal/pkg/audit"
	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/keylock"
	"github.com/shandysiswandi/otpgate/internal/pkg/mfa"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/twofactor/backupcode"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

var errCodeMismatch = errors.New("twofactor: code mismatch")

// Verify implements authplugin.Plugin with a fresh settings snapshot.
func (s *Usecase) Verify(ctx context.Context, req authplugin.VerifyRequest) authplugin.VerifyResponse {
	return s.VerifyWith(ctx, s.settings.Snapshot(), req)
}

// VerifyWith judges a submitted code. Every failure, whatever its cause,
// records a rate-limit failure for the source and returns MessageInvalid.
// Internal errors are logged and reported as a failed verification.
func (s *Usecase) VerifyWith(ctx context.Context, st entity.Settings, req authplugin.VerifyRequest) authplugin.VerifyResponse {
	ctx, span := s.startSpan(ctx, "Verify")
	defer span.End()

	addr := strings.TrimSpace(req.Address)
	principal := strings.TrimSpace(req.Principal)
	code := strings.TrimSpace(req.Code)

	if allowlist.IsWhitelisted(st.AllowlistEnabled, st.Allowlist, addr) {
		s.countOutcome(ctx, "verify", entity.OutcomeWhitelisted)
		return authplugin.VerifyResponse{Success: true, Whitelisted: true}
	}

	rs, err := s.limiter.Check(ctx, addr, st.RateLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check rate limit", "address", addr, "error", err)
		span.RecordError(err)
		return s.fail(ctx, st, addr, principal, false)
	}
	if !rs.Allowed {
		s.onBlocked(ctx, addr, rs.Locked, rs.LockedUntil)
		retry := rs.RetryAfter(s.clock.Now())
		s.countOutcome(ctx, "verify", entity.OutcomeBlocked)
		return authplugin.VerifyResponse{
			RateLimited: true,
			RetryAfter:  retry,
			Message:     blockedMessage(retry),
		}
	}

	fs, err := s.resolveFactor(ctx, st, principal)
	if err != nil {
		span.RecordError(err)
		return s.fail(ctx, st, addr, principal, false)
	}
	if !fs.required {
		s.countOutcome(ctx, "verify", entity.OutcomeNotRequired)
		return authplugin.VerifyResponse{Success: true}
	}

	if req.BackupCode || mfa.LooksLikeCode(code) {
		res, err := s.backupCodes.Verify(ctx, principal, code)
		if err != nil {
			slog.ErrorContext(ctx, "failed to verify backup code", "principal", principal, "error", err)
			span.RecordError(err)
			return s.fail(ctx, st, addr, principal, req.BackupCode)
		}
		if res.Valid {
			s.record(ctx, audit.Event{
				Type:      audit.EventBackupCodeUsed,
				Principal: principal,
				Address:   addr,
				Attributes: map[string]string{
					"remaining": strconv.Itoa(res.Remaining),
				},
			})
			resp := s.succeed(ctx, addr)
			resp.BackupCodeUsed = true
			resp.BackupCodesRemaining = res.Remaining
			return resp
		}
		if req.BackupCode {
			return s.fail(ctx, st, addr, principal, true)
		}
	}

	if !otp.IsCode(code) {
		return s.fail(ctx, st, addr, principal, false)
	}

	var ok bool
	switch fs.factor.Mode {
	case otp.ModeHOTP:
		ok, err = s.verifyHOTP(ctx, principal, code)
		if err != nil {
			slog.ErrorContext(ctx, "failed to verify hotp", "principal", principal, "error", err)
			span.RecordError(err)
		}
	default:
		ok = otp.VerifyTOTP(fs.factor.Secret, code, s.clock.Now(), fs.factor.EffectiveStep())
	}

	if !ok {
		return s.fail(ctx, st, addr, principal, false)
	}

	return s.succeed(ctx, addr)
}

// verifyHOTP re-reads the factor under the principal's lock and advances the
// counter by exactly one on a match. A mismatch leaves the counter untouched.
func (s *Usecase) verifyHOTP(ctx context.Context, principal, code string) (bool, error) {
	err := keylock.With(ctx, s.locker, backupcode.LockKey(principal), func(ctx context.Context) error {
		f, err := s.repoPrincipal.GetFactor(ctx, principal)
		if err != nil {
			return err
		}
		if !f.Configured() || f.Mode != otp.ModeHOTP {
			return errCodeMismatch
		}

		if !otp.VerifyHOTP(f.Secret, code, f.Counter) {
			return errCodeMismatch
		}

		return s.repoPrincipal.UpdateCounter(ctx, principal, f.Counter+1)
	})
	if errors.Is(err, errCodeMismatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Usecase) succeed(ctx context.Context, addr string) authplugin.VerifyResponse {
	if err := s.limiter.Clear(ctx, addr); err != nil && addr != "" {
		slog.ErrorContext(ctx, "failed to clear rate limit", "address", addr, "error", err)
	}

	s.countOutcome(ctx, "verify", entity.OutcomeSuccess)
	return authplugin.VerifyResponse{Success: true}
}

func (s *Usecase) fail(ctx context.Context, st entity.Settings, addr, principal string, backupAttempt bool) authplugin.VerifyResponse {
	if err := s.limiter.RecordFailure(ctx, addr, st.RateLimit); err != nil {
		slog.ErrorContext(ctx, "failed to record rate limit failure", "address", addr, "error", err)
	}

	s.record(ctx, audit.Event{
		Type:      audit.EventVerifyFailed,
		Principal: principal,
		Address:   addr,
	})

	s.countOutcome(ctx, "verify", entity.OutcomeFailure)
	return authplugin.VerifyResponse{
		Message:           MessageInvalid,
		InvalidBackupCode: backupAttempt,
	}
}
