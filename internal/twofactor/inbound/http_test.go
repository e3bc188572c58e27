package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/twofactor/usecase"
)

const testToken = "s3cret-admin-token"

type fakeUsecase struct {
	checkReq  authplugin.CheckRequest
	checkResp authplugin.CheckResponse

	verifyReq  authplugin.VerifyRequest
	verifyResp authplugin.VerifyResponse

	genIn    usecase.GenerateKeyInput
	saveIn   usecase.SaveFactorInput
	regenIn  usecase.RegenerateBackupCodesInput
	clearIn  usecase.AddressInput
	statuses []usecase.RateLimitStatus

	err error
}

func (f *fakeUsecase) Name() string { return "fake" }

func (f *fakeUsecase) Check(_ context.Context, req authplugin.CheckRequest) authplugin.CheckResponse {
	f.checkReq = req
	return f.checkResp
}

func (f *fakeUsecase) Verify(_ context.Context, req authplugin.VerifyRequest) authplugin.VerifyResponse {
	f.verifyReq = req
	return f.verifyResp
}

func (f *fakeUsecase) GenerateKey(_ context.Context, in usecase.GenerateKeyInput) (*usecase.GenerateKeyOutput, error) {
	f.genIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.GenerateKeyOutput{Secret: "JBSWY3DPEHPK3PXP", URI: "otpauth://totp/x", Mode: "totp", Step: 30}, nil
}

func (f *fakeUsecase) SaveFactor(_ context.Context, in usecase.SaveFactorInput) error {
	f.saveIn = in
	return f.err
}

func (f *fakeUsecase) DeleteFactor(context.Context, usecase.PrincipalInput) error {
	return f.err
}

func (f *fakeUsecase) RegenerateBackupCodes(_ context.Context, in usecase.RegenerateBackupCodesInput) ([]string, error) {
	f.regenIn = in
	if f.err != nil {
		return nil, f.err
	}
	return []string{"ABCD-EFGH", "JKLM-NPQR"}, nil
}

func (f *fakeUsecase) BackupCodeCount(context.Context, usecase.PrincipalInput) (int, error) {
	return 7, f.err
}

func (f *fakeUsecase) ClearBackupCodes(context.Context, usecase.PrincipalInput) error {
	return f.err
}

func (f *fakeUsecase) RateLimitStatus(_ context.Context, in usecase.AddressInput) (*usecase.RateLimitStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.RateLimitStatus{Address: in.Address, Allowed: true, Remaining: 5}, nil
}

func (f *fakeUsecase) RateLimitList(context.Context) ([]usecase.RateLimitStatus, error) {
	return f.statuses, f.err
}

func (f *fakeUsecase) ClearRateLimit(_ context.Context, in usecase.AddressInput) error {
	f.clearIn = in
	return f.err
}

func newServer(t *testing.T, f *fakeUsecase) *router.Router {
	t.Helper()

	reg, err := authplugin.NewRegistry(f)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	r := router.NewRouter(router.Config{Instrument: instrument.NewNoop()})
	RegisterHTTPEndpoint(r, f, reg, testToken)
	return r
}

func do(r http.Handler, method, path, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.RemoteAddr = "192.0.2.10:51000"
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func data(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body struct {
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body.Data
}

func TestCheckEndpoint(t *testing.T) {
	t.Run("required", func(t *testing.T) {
		// Arrange
		f := &fakeUsecase{checkResp: authplugin.CheckResponse{
			Required: true,
			Fields:   []authplugin.Field{{Name: "otp_code", Type: "text", Required: true}},
		}}
		srv := newServer(t, f)

		// Act
		rec := do(srv, http.MethodPost, "/api/v1/twofactor/check", `{"username":"admin"}`, false)

		// Assert
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if f.checkReq.Principal != "admin" || f.checkReq.Address != "192.0.2.10" {
			t.Fatalf("request = %+v", f.checkReq)
		}
		d := data(t, rec)
		if d["required"] != true {
			t.Fatalf("data = %v", d)
		}
		if fields, _ := d["fields"].([]any); len(fields) != 1 {
			t.Fatalf("fields = %v", d["fields"])
		}
	})

	t.Run("blocked", func(t *testing.T) {
		f := &fakeUsecase{checkResp: authplugin.CheckResponse{Required: true, Blocked: true, RetryAfter: 120}}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/check", `{"username":"admin"}`, false)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "120" {
			t.Fatalf("Retry-After = %q", got)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := newServer(t, &fakeUsecase{})

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/check", `{"username":`, false)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestVerifyEndpoint(t *testing.T) {
	t.Run("backup code used", func(t *testing.T) {
		// Arrange
		f := &fakeUsecase{verifyResp: authplugin.VerifyResponse{Success: true, BackupCodeUsed: true, BackupCodesRemaining: 0}}
		srv := newServer(t, f)

		// Act
		rec := do(srv, http.MethodPost, "/api/v1/twofactor/verify",
			`{"username":"admin","code":"ABCD-EFGH","backup_code":true}`, false)

		// Assert
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !f.verifyReq.BackupCode || f.verifyReq.Code != "ABCD-EFGH" {
			t.Fatalf("request = %+v", f.verifyReq)
		}
		d := data(t, rec)
		if d["success"] != true {
			t.Fatalf("data = %v", d)
		}
		if remaining, ok := d["backup_codes_remaining"].(float64); !ok || remaining != 0 {
			t.Fatalf("backup_codes_remaining = %v, want explicit 0", d["backup_codes_remaining"])
		}
	})

	t.Run("failure", func(t *testing.T) {
		f := &fakeUsecase{verifyResp: authplugin.VerifyResponse{Message: usecase.MessageInvalid}}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/verify", `{"username":"admin","code":"000000"}`, false)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), usecase.MessageInvalid) {
			t.Fatalf("body = %s", rec.Body.String())
		}
		if _, ok := data(t, rec)["backup_codes_remaining"]; ok {
			t.Fatalf("backup_codes_remaining must be omitted")
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		f := &fakeUsecase{verifyResp: authplugin.VerifyResponse{RateLimited: true, RetryAfter: 300}}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/verify", `{"username":"admin","code":"123456"}`, false)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "300" {
			t.Fatalf("Retry-After = %q", got)
		}
	})
}

func TestPluginEndpoints(t *testing.T) {
	f := &fakeUsecase{checkResp: authplugin.CheckResponse{Required: true}}
	srv := newServer(t, f)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "list", method: http.MethodGet, path: "/api/v1/twofactor/plugins", status: http.StatusOK},
		{name: "check", method: http.MethodPost, path: "/api/v1/twofactor/plugins/fake/check", body: `{"username":"admin"}`, status: http.StatusOK},
		{name: "verify", method: http.MethodPost, path: "/api/v1/twofactor/plugins/fake/verify", body: `{"username":"admin","code":"1"}`, status: http.StatusOK},
		{name: "unknown plugin", method: http.MethodPost, path: "/api/v1/twofactor/plugins/radius/check", body: `{"username":"admin"}`, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, tt.method, tt.path, tt.body, false)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("requires token", func(t *testing.T) {
		srv := newServer(t, &fakeUsecase{})

		rec := do(srv, http.MethodGet, "/api/v1/twofactor/admin/rate-limits", "", false)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("generate key", func(t *testing.T) {
		f := &fakeUsecase{}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/admin/principals/admin/key", `{"mode":"hotp"}`, true)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if f.genIn.Principal != "admin" || f.genIn.Mode != "hotp" {
			t.Fatalf("input = %+v", f.genIn)
		}
		if d := data(t, rec); d["secret"] != "JBSWY3DPEHPK3PXP" {
			t.Fatalf("data = %v", d)
		}
	})

	t.Run("save factor", func(t *testing.T) {
		f := &fakeUsecase{}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPut, "/api/v1/twofactor/admin/principals/admin",
			`{"secret":"JBSWY3DPEHPK3PXP","mode":"hotp","counter":7}`, true)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if f.saveIn.Counter != 7 || f.saveIn.Principal != "admin" {
			t.Fatalf("input = %+v", f.saveIn)
		}
	})

	t.Run("delete unknown principal", func(t *testing.T) {
		f := &fakeUsecase{err: goerror.NewBusiness("principal has no second factor", goerror.CodeNotFound)}
		srv := newServer(t, f)

		rec := do(srv, http.MethodDelete, "/api/v1/twofactor/admin/principals/ghost", "", true)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("regenerate backup codes without body", func(t *testing.T) {
		f := &fakeUsecase{}
		srv := newServer(t, f)

		rec := do(srv, http.MethodPost, "/api/v1/twofactor/admin/principals/admin/backup-codes", "", true)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
		if f.regenIn.Count != 0 {
			t.Fatalf("count = %d", f.regenIn.Count)
		}
		if codes, _ := data(t, rec)["codes"].([]any); len(codes) != 2 {
			t.Fatalf("codes = %v", codes)
		}
	})

	t.Run("backup code count", func(t *testing.T) {
		srv := newServer(t, &fakeUsecase{})

		rec := do(srv, http.MethodGet, "/api/v1/twofactor/admin/principals/admin/backup-codes", "", true)

		if d := data(t, rec); d["remaining"] != float64(7) {
			t.Fatalf("data = %v", d)
		}
	})

	t.Run("rate limit list", func(t *testing.T) {
		f := &fakeUsecase{statuses: []usecase.RateLimitStatus{
			{Address: "192.0.2.1", Attempts: 3, Remaining: 2, Allowed: true},
			{Address: "192.0.2.2", LockedUntil: 1700000300, RetryAfter: 300},
		}}
		srv := newServer(t, f)

		rec := do(srv, http.MethodGet, "/api/v1/twofactor/admin/rate-limits", "", true)

		var body struct {
			Data []RateLimitStatusResponse `json:"data"`
			Meta map[string]any            `json:"meta"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Data) != 2 || body.Meta["total"] != float64(2) {
			t.Fatalf("body = %+v", body)
		}
		if body.Data[1].RetryAfter != 300 {
			t.Fatalf("retry_after = %d", body.Data[1].RetryAfter)
		}
	})

	t.Run("clear rate limit", func(t *testing.T) {
		f := &fakeUsecase{}
		srv := newServer(t, f)

		rec := do(srv, http.MethodDelete, "/api/v1/twofactor/admin/rate-limits/192.0.2.7", "", true)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if f.clearIn.Address != "192.0.2.7" {
			t.Fatalf("address = %q", f.clearIn.Address)
		}
	})
}
