package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

var errMalformedPrincipal = errors.New("twofactor: malformed principal")

type principalInput struct {
	Principal string `validate:"required,principal"`
}

// factorState is the outcome of the factor check for one principal.
type factorState struct {
	factor       *entity.Factor
	required     bool
	uncalibrated bool
}

func (s *Usecase) validPrincipal(name string) bool {
	return s.validator.Validate(principalInput{Principal: name}) == nil
}

// resolveFactor decides whether the principal must present a second factor.
// It fails closed: a malformed principal or an unreadable store yields a
// required factor that no code can satisfy.
func (s *Usecase) resolveFactor(ctx context.Context, st entity.Settings, principal string) (factorState, error) {
	if !st.Enabled {
		return factorState{}, nil
	}

	principal = strings.TrimSpace(principal)
	if !s.validPrincipal(principal) {
		slog.WarnContext(ctx, "principal identifier is malformed", "principal", principal)
		return factorState{required: true}, errMalformedPrincipal
	}

	f, err := s.repoPrincipal.GetFactor(ctx, principal)
	if errors.Is(err, goerror.ErrNotFound) {
		return factorState{}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get factor", "principal", principal, "error", err)
		return factorState{required: true}, err
	}

	if !f.Configured() {
		return factorState{factor: f}, nil
	}

	if f.Mode == otp.ModeTOTP {
		res := s.timeGuard.Check(st.MinValidTime)
		if !res.Calibrated {
			slog.WarnContext(ctx, "clock is not calibrated, totp not enforced",
				"principal", principal, "current_time", res.CurrentTime, "min_valid_time", res.MinValidTime)
			return factorState{factor: f, uncalibrated: true}, nil
		}
	}

	return factorState{factor: f, required: true}, nil
}
