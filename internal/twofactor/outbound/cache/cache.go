package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	principalPrefix = "twofactor:principal:"
	rateLimitPrefix = "twofactor:ratelimit:"
)

// Redis hash fields of a principal section.
const (
	fieldKey         = "key"
	fieldType        = "type"
	fieldStep        = "step"
	fieldCounter     = "counter"
	fieldBackupCodes = "backup_codes"
)

type Cache struct {
	client redis.UniversalClient
	ins    instrument.Instrumentation
}

func NewCache(client redis.UniversalClient, ins instrument.Instrumentation) *Cache {
	return &Cache{client: client, ins: ins}
}

func principalKey(name string) string {
	return principalPrefix + name
}

func rateLimitKey(addr string) string {
	return rateLimitPrefix + addr
}

func (s *Cache) mapError(err error) error {
	if errors.Is(err, redis.Nil) {
		return goerror.ErrNotFound
	}
	return err
}

func (s *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("twofactor.outbound.cache").Start(ctx, name)
}

func (s *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
