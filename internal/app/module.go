package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpgate/internal/twofactor"
)

func (a *App) initModules() {
	plugin, err := twofactor.New(twofactor.Dependency{
		CacheConn:       a.cacheConn,
		Router:          a.router,
		Config:          a.config,
		Instrument:      a.ins,
		Validator:       a.validator,
		Clock:           a.clock,
		Locker:          a.locker,
		BackupCodeHash:  a.backupCodeHash,
		MFARecoveryCode: a.mfaRecoveryCode,
		Provisioner:     a.provisioner,
		Audit:           a.audit,
	})
	if err != nil {
		slog.Error("failed to init module twofactor", "error", err)
		os.Exit(1)
	}

	slog.Info("auth plugin registered", "name", plugin.Name())
}
