package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type healthResponse struct {
	Redis string `json:"redis"`
}

func (healthResponse) Message() string {
	return "service is healthy"
}

func (a *App) health(r *router.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.cacheConn.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "health check failed", "dependency", "redis", "error", err)
		return nil, goerror.NewUnavailable(err)
	}

	return healthResponse{Redis: "ok"}, nil
}
