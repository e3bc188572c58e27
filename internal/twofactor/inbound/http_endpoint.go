package inbound

import (
	"errors"

	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/twofactor/usecase"
)

// HTTPEndpoint exposes the login second factor and its administration.
type HTTPEndpoint struct {
	uc      uc
	plugins plugins
}

// Check reports whether the login must present a second factor.
func (h *HTTPEndpoint) Check(r *router.Request) (any, error) {
	var req CheckRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp := h.uc.Check(r.Context(), authplugin.CheckRequest{
		Principal: req.Username,
		Address:   r.ClientIP(),
	})

	return newCheckResponse(resp), nil
}

// Verify judges the submitted one-time password or backup code.
func (h *HTTPEndpoint) Verify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp := h.uc.Verify(r.Context(), authplugin.VerifyRequest{
		Principal:  req.Username,
		Address:    r.ClientIP(),
		Code:       req.Code,
		BackupCode: req.BackupCode,
	})

	return newVerifyResponse(resp), nil
}

func (h *HTTPEndpoint) Plugins(*router.Request) (any, error) {
	return PluginsResponse{Plugins: h.plugins.Names()}, nil
}

// PluginCheck dispatches Check to a registered plugin by name.
func (h *HTTPEndpoint) PluginCheck(r *router.Request) (any, error) {
	var req CheckRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.plugins.Check(r.Context(), r.GetParam("name"), authplugin.CheckRequest{
		Principal: req.Username,
		Address:   r.ClientIP(),
	})
	if err != nil {
		return nil, pluginError(err)
	}

	return newCheckResponse(resp), nil
}

// PluginVerify dispatches Verify to a registered plugin by name.
func (h *HTTPEndpoint) PluginVerify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.plugins.Verify(r.Context(), r.GetParam("name"), authplugin.VerifyRequest{
		Principal:  req.Username,
		Address:    r.ClientIP(),
		Code:       req.Code,
		BackupCode: req.BackupCode,
	})
	if err != nil {
		return nil, pluginError(err)
	}

	return newVerifyResponse(resp), nil
}

func pluginError(err error) error {
	if errors.Is(err, authplugin.ErrPluginNotFound) {
		return goerror.NewBusiness("auth plugin not found", goerror.CodeNotFound)
	}
	return goerror.NewServer(err)
}

// GenerateKey enrols a principal with a new random secret.
func (h *HTTPEndpoint) GenerateKey(r *router.Request) (any, error) {
	var req GenerateKeyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	username := r.GetParam("username")
	resp, err := h.uc.GenerateKey(r.Context(), usecase.GenerateKeyInput{
		Principal: username,
		Mode:      req.Mode,
		Step:      req.Step,
	})
	if err != nil {
		return nil, err
	}

	return GenerateKeyResponse{
		Username: username,
		Secret:   resp.Secret,
		URI:      resp.URI,
		Mode:     string(resp.Mode),
		Step:     resp.Step,
	}, nil
}

func (h *HTTPEndpoint) SaveFactor(r *router.Request) (any, error) {
	var req SaveFactorRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	err := h.uc.SaveFactor(r.Context(), usecase.SaveFactorInput{
		Principal: r.GetParam("username"),
		Secret:    req.Secret,
		Mode:      req.Mode,
		Step:      req.Step,
		Counter:   req.Counter,
	})
	if err != nil {
		return nil, err
	}

	return SaveFactorResponse{}, nil
}

func (h *HTTPEndpoint) DeleteFactor(r *router.Request) (any, error) {
	err := h.uc.DeleteFactor(r.Context(), usecase.PrincipalInput{Principal: r.GetParam("username")})
	if err != nil {
		return nil, err
	}

	return DeleteFactorResponse{}, nil
}

// RegenerateBackupCodes replaces the principal's backup codes. An empty body
// issues the default count.
func (h *HTTPEndpoint) RegenerateBackupCodes(r *router.Request) (any, error) {
	var req RegenerateBackupCodesRequest
	if r.ContentLength != 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	username := r.GetParam("username")
	codes, err := h.uc.RegenerateBackupCodes(r.Context(), usecase.RegenerateBackupCodesInput{
		Principal: username,
		Count:     req.Count,
	})
	if err != nil {
		return nil, err
	}

	return RegenerateBackupCodesResponse{Username: username, Codes: codes}, nil
}

func (h *HTTPEndpoint) BackupCodeCount(r *router.Request) (any, error) {
	username := r.GetParam("username")
	n, err := h.uc.BackupCodeCount(r.Context(), usecase.PrincipalInput{Principal: username})
	if err != nil {
		return nil, err
	}

	return BackupCodeCountResponse{Username: username, Remaining: n}, nil
}

func (h *HTTPEndpoint) ClearBackupCodes(r *router.Request) (any, error) {
	err := h.uc.ClearBackupCodes(r.Context(), usecase.PrincipalInput{Principal: r.GetParam("username")})
	if err != nil {
		return nil, err
	}

	return ClearBackupCodesResponse{}, nil
}

func (h *HTTPEndpoint) RateLimitList(r *router.Request) (any, error) {
	list, err := h.uc.RateLimitList(r.Context())
	if err != nil {
		return nil, err
	}

	resp := make(RateLimitListResponse, 0, len(list))
	for _, st := range list {
		resp = append(resp, newRateLimitStatusResponse(st))
	}

	return resp, nil
}

func (h *HTTPEndpoint) RateLimitStatus(r *router.Request) (any, error) {
	st, err := h.uc.RateLimitStatus(r.Context(), usecase.AddressInput{Address: r.GetParam("addr")})
	if err != nil {
		return nil, err
	}

	return newRateLimitStatusResponse(*st), nil
}

func (h *HTTPEndpoint) ClearRateLimit(r *router.Request) (any, error) {
	err := h.uc.ClearRateLimit(r.Context(), usecase.AddressInput{Address: r.GetParam("addr")})
	if err != nil {
		return nil, err
	}

	return ClearRateLimitResponse{}, nil
}

func newRateLimitStatusResponse(st usecase.RateLimitStatus) RateLimitStatusResponse {
	return RateLimitStatusResponse{
		Address:     st.Address,
		Allowed:     st.Allowed,
		Remaining:   st.Remaining,
		Attempts:    st.Attempts,
		LockedUntil: st.LockedUntil,
		RetryAfter:  st.RetryAfter,
	}
}
