package inbound

import (
	"net/http"
	"strconv"

	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
)

type CheckRequest struct {
	Username string `json:"username"`
}

type CheckResponse struct {
	Required          bool               `json:"required"`
	Fields            []authplugin.Field `json:"fields,omitempty"`
	Blocked           bool               `json:"blocked,omitempty"`
	RetryAfter        int64              `json:"retry_after,omitempty"`
	Whitelisted       bool               `json:"whitelisted,omitempty"`
	TimeNotCalibrated bool               `json:"time_not_calibrated,omitempty"`

	msg string
}

func newCheckResponse(resp authplugin.CheckResponse) CheckResponse {
	return CheckResponse{
		Required:          resp.Required,
		Fields:            resp.Fields,
		Blocked:           resp.Blocked,
		RetryAfter:        resp.RetryAfter,
		Whitelisted:       resp.Whitelisted,
		TimeNotCalibrated: resp.TimeNotCalibrated,
		msg:               resp.Message,
	}
}

func (r CheckResponse) StatusCode() int {
	if r.Blocked {
		return http.StatusTooManyRequests
	}
	return http.StatusOK
}

func (r CheckResponse) Message() string {
	if r.msg != "" {
		return r.msg
	}
	if r.Required {
		return "second factor required"
	}
	return "second factor not required"
}

func (r CheckResponse) Headers() map[string]string {
	return retryAfterHeader(r.Blocked, r.RetryAfter)
}

type VerifyRequest struct {
	Username   string `json:"username"`
	Code       string `json:"code"`
	BackupCode bool   `json:"backup_code"`
}

type VerifyResponse struct {
	Success              bool  `json:"success"`
	RateLimited          bool  `json:"rate_limited,omitempty"`
	RetryAfter           int64 `json:"retry_after,omitempty"`
	Whitelisted          bool  `json:"whitelisted,omitempty"`
	BackupCodeUsed       bool  `json:"backup_code_used,omitempty"`
	InvalidBackupCode    bool  `json:"invalid_backup_code,omitempty"`
	BackupCodesRemaining *int  `json:"backup_codes_remaining,omitempty"`

	msg string
}

func newVerifyResponse(resp authplugin.VerifyResponse) VerifyResponse {
	out := VerifyResponse{
		Success:           resp.Success,
		RateLimited:       resp.RateLimited,
		RetryAfter:        resp.RetryAfter,
		Whitelisted:       resp.Whitelisted,
		BackupCodeUsed:    resp.BackupCodeUsed,
		InvalidBackupCode: resp.InvalidBackupCode,
		msg:               resp.Message,
	}
	if resp.BackupCodeUsed {
		remaining := resp.BackupCodesRemaining
		out.BackupCodesRemaining = &remaining
	}
	return out
}

func (r VerifyResponse) StatusCode() int {
	if r.RateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusOK
}

func (r VerifyResponse) Message() string {
	if r.msg != "" {
		return r.msg
	}
	return "second factor accepted"
}

func (r VerifyResponse) Headers() map[string]string {
	return retryAfterHeader(r.RateLimited, r.RetryAfter)
}

func retryAfterHeader(blocked bool, retry int64) map[string]string {
	if !blocked || retry <= 0 {
		return nil
	}
	return map[string]string{"Retry-After": strconv.FormatInt(retry, 10)}
}

type PluginsResponse struct {
	Plugins []string `json:"plugins"`
}

type GenerateKeyRequest struct {
	Mode string `json:"mode"`
	Step int64  `json:"step"`
}

type GenerateKeyResponse struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
	URI      string `json:"uri"`
	Mode     string `json:"mode"`
	Step     int64  `json:"step"`
}

func (GenerateKeyResponse) StatusCode() int {
	return http.StatusCreated
}

func (GenerateKeyResponse) Message() string {
	return "Key generated. Enrol it in an authenticator app now, it is not shown again."
}

type SaveFactorRequest struct {
	Secret  string `json:"secret"`
	Mode    string `json:"mode"`
	Step    int64  `json:"step"`
	Counter uint64 `json:"counter"`
}

type SaveFactorResponse struct{}

func (SaveFactorResponse) Message() string {
	return "Second factor saved."
}

type DeleteFactorResponse struct{}

func (DeleteFactorResponse) Message() string {
	return "Second factor removed."
}

type RegenerateBackupCodesRequest struct {
	Count int `json:"count"`
}

type RegenerateBackupCodesResponse struct {
	Username string   `json:"username"`
	Codes    []string `json:"codes"`
}

func (RegenerateBackupCodesResponse) StatusCode() int {
	return http.StatusCreated
}

func (RegenerateBackupCodesResponse) Message() string {
	return "Backup codes generated. Each code works once and is not shown again."
}

type BackupCodeCountResponse struct {
	Username  string `json:"username"`
	Remaining int    `json:"remaining"`
}

type ClearBackupCodesResponse struct{}

func (ClearBackupCodesResponse) Message() string {
	return "Backup codes revoked."
}

type RateLimitStatusResponse struct {
	Address     string `json:"address"`
	Allowed     bool   `json:"allowed"`
	Remaining   int    `json:"remaining"`
	Attempts    int    `json:"attempts"`
	LockedUntil int64  `json:"locked_until,omitempty"`
	RetryAfter  int64  `json:"retry_after,omitempty"`
}

type RateLimitListResponse []RateLimitStatusResponse

func (r RateLimitListResponse) Meta() map[string]any {
	return map[string]any{"total": len(r)}
}

type ClearRateLimitResponse struct{}

func (ClearRateLimitResponse) Message() string {
	return "Rate limit cleared."
}
