package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/allowlist"
	"github.com/shandysiswandi/otpgate/internal/pkg/audit"
	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

const (
	FieldCode = "otp_code"

	messageChallenge    = "Enter the 6-digit code from your authenticator app or one of your backup codes"
	messageUncalibrated = "System time is not set, one-time password check skipped"
)

var challengeFields = []authplugin.Field{
	{
		Name:        FieldCode,
		Type:        "text",
		Label:       "One-time password",
		Placeholder: "123456 or XXXX-XXXX",
		MaxLength:   9,
		Required:    true,
	},
}

func blockedMessage(retryAfter int64) string {
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", retryAfter)
}

// Check implements authplugin.Plugin with a fresh settings snapshot.
func (s *Usecase) Check(ctx context.Context, req authplugin.CheckRequest) authplugin.CheckResponse {
	return s.CheckWith(ctx, s.settings.Snapshot(), req)
}

// CheckWith decides whether the login attempt must present a second factor.
// The allowlist is consulted first, then the source's lockout state, and only
// then the principal's configuration, so a locked source learns nothing about
// the principal.
func (s *Usecase) CheckWith(ctx context.Context, st entity.Settings, req authplugin.CheckRequest) authplugin.CheckResponse {
	ctx, span := s.startSpan(ctx, "Check")
	defer span.End()

	addr := strings.TrimSpace(req.Address)

	if allowlist.IsWhitelisted(st.AllowlistEnabled, st.Allowlist, addr) {
		s.countOutcome(ctx, "check", entity.OutcomeWhitelisted)
		return authplugin.CheckResponse{Whitelisted: true}
	}

	rs, err := s.limiter.Check(ctx, addr, st.RateLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check rate limit", "address", addr, "error", err)
	}
	if err == nil && !rs.Allowed {
		s.onBlocked(ctx, addr, rs.Locked, rs.LockedUntil)
		retry := rs.RetryAfter(s.clock.Now())
		s.countOutcome(ctx, "check", entity.OutcomeBlocked)
		return authplugin.CheckResponse{
			Required:   true,
			Blocked:    true,
			RetryAfter: retry,
			Message:    blockedMessage(retry),
		}
	}

	fs, err := s.resolveFactor(ctx, st, req.Principal)
	if err != nil {
		span.RecordError(err)
	}

	if fs.uncalibrated {
		s.record(ctx, audit.Event{
			Type:      audit.EventTimeNotCalibrated,
			Principal: req.Principal,
			Address:   addr,
		})
		s.countOutcome(ctx, "check", entity.OutcomeNotRequired)
		return authplugin.CheckResponse{TimeNotCalibrated: true, Message: messageUncalibrated}
	}

	if !fs.required {
		s.countOutcome(ctx, "check", entity.OutcomeNotRequired)
		return authplugin.CheckResponse{}
	}

	s.countOutcome(ctx, "check", entity.OutcomeChallenge)
	return authplugin.CheckResponse{
		Required: true,
		Fields:   challengeFields,
		Message:  messageChallenge,
	}
}

func (s *Usecase) onBlocked(ctx context.Context, addr string, justLocked bool, lockedUntil int64) {
	if !justLocked {
		return
	}
	s.record(ctx, audit.Event{
		Type:    audit.EventLockout,
		Address: addr,
		Attributes: map[string]string{
			"locked_until": strconv.FormatInt(lockedUntil, 10),
		},
	})
}
