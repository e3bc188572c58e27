package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

const scanCount = 100

func (s *Cache) GetRateLimit(ctx context.Context, addr string) (_ *entity.RateLimitEntry, err error) {
	ctx, span := s.startSpan(ctx, "GetRateLimit")
	defer func() { s.endSpan(span, err) }()

	raw, err := s.client.Get(ctx, rateLimitKey(addr)).Bytes()
	if err != nil {
		return nil, s.mapError(err)
	}

	var e entity.RateLimitEntry
	if err = json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("cache: rate limit %s: %w", addr, err)
	}

	return &e, nil
}

// SaveRateLimit stores e for ttl. A non-positive ttl keeps the entry until it
// is deleted.
func (s *Cache) SaveRateLimit(ctx context.Context, addr string, e entity.RateLimitEntry, ttl time.Duration) (err error) {
	ctx, span := s.startSpan(ctx, "SaveRateLimit")
	defer func() { s.endSpan(span, err) }()

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, rateLimitKey(addr), raw, max(ttl, 0)).Err()
}

func (s *Cache) DeleteRateLimit(ctx context.Context, addr string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteRateLimit")
	defer func() { s.endSpan(span, err) }()

	return s.client.Del(ctx, rateLimitKey(addr)).Err()
}

func (s *Cache) ListRateLimits(ctx context.Context) (_ []entity.RateLimitRecord, err error) {
	ctx, span := s.startSpan(ctx, "ListRateLimits")
	defer func() { s.endSpan(span, err) }()

	var out []entity.RateLimitRecord
	iter := s.client.Scan(ctx, 0, rateLimitPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}

		var e entity.RateLimitEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("cache: rate limit %s: %w", key, err)
		}

		out = append(out, entity.RateLimitRecord{
			Address: strings.TrimPrefix(key, rateLimitPrefix),
			Entry:   e,
		})
	}
	if err = iter.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
