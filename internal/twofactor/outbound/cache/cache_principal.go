package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
)

// setCounterScript updates the counter field only on an existing section.
var setCounterScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
redis.call("HSET", KEYS[1], "counter", ARGV[1])
return 1
`)

func (s *Cache) GetFactor(ctx context.Context, principal string) (_ *entity.Factor, err error) {
	ctx, span := s.startSpan(ctx, "GetFactor")
	defer func() { s.endSpan(span, err) }()

	fields, err := s.client.HGetAll(ctx, principalKey(principal)).Result()
	if err != nil {
		return nil, s.mapError(err)
	}
	if len(fields) == 0 {
		return nil, goerror.ErrNotFound
	}

	f := &entity.Factor{
		Principal: principal,
		Secret:    fields[fieldKey],
		Mode:      otp.ParseMode(fields[fieldType]),
	}

	if v := fields[fieldStep]; v != "" {
		// a corrupt step falls back to the default period
		f.Step, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := fields[fieldCounter]; v != "" {
		f.Counter, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cache: principal %s counter %q: %w", principal, v, err)
		}
	}
	if v := fields[fieldBackupCodes]; v != "" {
		if err = json.Unmarshal([]byte(v), &f.BackupCodes); err != nil {
			return nil, fmt.Errorf("cache: principal %s backup codes: %w", principal, err)
		}
	}

	return f, nil
}

// SaveFactor writes the secret fields of the section. Backup codes are left
// as they are.
func (s *Cache) SaveFactor(ctx context.Context, f entity.Factor) (err error) {
	ctx, span := s.startSpan(ctx, "SaveFactor")
	defer func() { s.endSpan(span, err) }()

	err = s.client.HSet(ctx, principalKey(f.Principal),
		fieldKey, f.Secret,
		fieldType, string(f.Mode),
		fieldStep, strconv.FormatInt(f.EffectiveStep(), 10),
		fieldCounter, strconv.FormatUint(f.Counter, 10),
	).Err()
	return err
}

func (s *Cache) UpdateCounter(ctx context.Context, principal string, counter uint64) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateCounter")
	defer func() { s.endSpan(span, err) }()

	res, err := setCounterScript.Run(ctx, s.client, []string{principalKey(principal)}, strconv.FormatUint(counter, 10)).Int()
	if err != nil {
		return err
	}
	if res < 0 {
		return goerror.ErrNotFound
	}

	return nil
}

func (s *Cache) DeleteFactor(ctx context.Context, principal string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteFactor")
	defer func() { s.endSpan(span, err) }()

	n, err := s.client.Del(ctx, principalKey(principal)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return goerror.ErrNotFound
	}

	return nil
}

func (s *Cache) GetBackupCodes(ctx context.Context, principal string) (_ []string, err error) {
	ctx, span := s.startSpan(ctx, "GetBackupCodes")
	defer func() { s.endSpan(span, err) }()

	raw, err := s.client.HGet(ctx, principalKey(principal), fieldBackupCodes).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var hashes []string
	if err = json.Unmarshal([]byte(raw), &hashes); err != nil {
		return nil, fmt.Errorf("cache: principal %s backup codes: %w", principal, err)
	}

	return hashes, nil
}

// SaveBackupCodes replaces the stored hashes. An empty list removes the field.
func (s *Cache) SaveBackupCodes(ctx context.Context, principal string, hashes []string) (err error) {
	ctx, span := s.startSpan(ctx, "SaveBackupCodes")
	defer func() { s.endSpan(span, err) }()

	key := principalKey(principal)
	if len(hashes) == 0 {
		return s.client.HDel(ctx, key, fieldBackupCodes).Err()
	}

	raw, err := json.Marshal(hashes)
	if err != nil {
		return err
	}

	return s.client.HSet(ctx, key, fieldBackupCodes, string(raw)).Err()
}
