package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/pkg/authplugin"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/twofactor/usecase"
)

type uc interface {
	Check(ctx context.Context, req authplugin.CheckRequest) authplugin.CheckResponse
	Verify(ctx context.Context, req authplugin.VerifyRequest) authplugin.VerifyResponse

	GenerateKey(ctx context.Context, in usecase.GenerateKeyInput) (*usecase.GenerateKeyOutput, error)
	SaveFactor(ctx context.Context, in usecase.SaveFactorInput) error
	DeleteFactor(ctx context.Context, in usecase.PrincipalInput) error

	RegenerateBackupCodes(ctx context.Context, in usecase.RegenerateBackupCodesInput) ([]string, error)
	BackupCodeCount(ctx context.Context, in usecase.PrincipalInput) (int, error)
	ClearBackupCodes(ctx context.Context, in usecase.PrincipalInput) error

	RateLimitStatus(ctx context.Context, in usecase.AddressInput) (*usecase.RateLimitStatus, error)
	RateLimitList(ctx context.Context) ([]usecase.RateLimitStatus, error)
	ClearRateLimit(ctx context.Context, in usecase.AddressInput) error
}

type plugins interface {
	Names() []string
	Check(ctx context.Context, name string, req authplugin.CheckRequest) (authplugin.CheckResponse, error)
	Verify(ctx context.Context, name string, req authplugin.VerifyRequest) (authplugin.VerifyResponse, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc, reg plugins, adminToken string) {
	end := &HTTPEndpoint{uc: uc, plugins: reg}
	admin := router.AdminToken(adminToken)

	// Login flow, called by the web login front end
	r.POST("/api/v1/twofactor/check", end.Check)
	r.POST("/api/v1/twofactor/verify", end.Verify)

	// Plugin dispatch
	r.GET("/api/v1/twofactor/plugins", end.Plugins)
	r.POST("/api/v1/twofactor/plugins/:name/check", end.PluginCheck)
	r.POST("/api/v1/twofactor/plugins/:name/verify", end.PluginVerify)

	// Principal administration (admin token)
	r.POST("/api/v1/twofactor/admin/principals/:username/key", end.GenerateKey, admin)
	r.PUT("/api/v1/twofactor/admin/principals/:username", end.SaveFactor, admin)
	r.DELETE("/api/v1/twofactor/admin/principals/:username", end.DeleteFactor, admin)
	r.POST("/api/v1/twofactor/admin/principals/:username/backup-codes", end.RegenerateBackupCodes, admin)
	r.GET("/api/v1/twofactor/admin/principals/:username/backup-codes", end.BackupCodeCount, admin)
	r.DELETE("/api/v1/twofactor/admin/principals/:username/backup-codes", end.ClearBackupCodes, admin)

	// Rate limit administration (admin token)
	r.GET("/api/v1/twofactor/admin/rate-limits", end.RateLimitList, admin)
	r.GET("/api/v1/twofactor/admin/rate-limits/:addr", end.RateLimitStatus, admin)
	r.DELETE("/api/v1/twofactor/admin/rate-limits/:addr", end.ClearRateLimit, admin)
}
