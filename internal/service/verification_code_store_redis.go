package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/security"
)

// Returns 1 consumed, 0 missing, -1 expired, -2 mismatch. Expiry is judged
// against the caller's clock so both stores agree on the TTL boundary.
var redisVerifyCodeScript = redis.NewScript(`
local key = KEYS[1]
local submitted = ARGV[1]
local now_ms = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local stored = redis.call("HGET", key, "code")
if not stored then
  return 0
end
local created_ms = tonumber(redis.call("HGET", key, "created_ms") or "0")
if (now_ms - created_ms) > ttl_ms then
  redis.call("DEL", key)
  return -1
end
if stored ~= submitted then
  return -2
end
redis.call("DEL", key)
return 1
`)

// redisCodeRetention keeps records a little past their TTL so the expired
// outcome is observable before Redis evicts the key.
const redisCodeRetention = time.Minute

type RedisVerificationCodeStore struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	now      func() time.Time
	notifier VerificationCodeNotifier
	logger   *slog.Logger
}

func NewRedisVerificationCodeStore(client redis.UniversalClient, prefix string, ttl time.Duration, notifier VerificationCodeNotifier, logger *slog.Logger, opts ...VerificationCodeStoreOption) *RedisVerificationCodeStore {
	if prefix == "" {
		prefix = "verification_code"
	}
	if ttl <= 0 {
		ttl = DefaultVerificationCodeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := applyVerificationCodeStoreOptions(opts)
	return &RedisVerificationCodeStore{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		now:      o.now,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *RedisVerificationCodeStore) Generate(ctx context.Context, ownerKey string) (string, error) {
	key := normalizeOwnerKey(ownerKey)
	if key == "" {
		return "", ErrInvalidOwnerKey
	}
	code, err := security.NewNumericCode(VerificationCodeDigits)
	if err != nil {
		observability.RecordVerificationCodeEvent(ctx, "redis", "generate", "error")
		return "", err
	}
	now := s.now()
	redisKey := s.recordKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.HSet(ctx, redisKey, "code", code, "created_ms", now.UnixMilli())
		pipe.PExpire(ctx, redisKey, s.ttl+redisCodeRetention)
		return nil
	})
	if err != nil {
		observability.RecordVerificationCodeEvent(ctx, "redis", "generate", "error")
		return "", fmt.Errorf("store verification code: %w", err)
	}

	observability.RecordVerificationCodeEvent(ctx, "redis", "generate", "issued")
	deliverVerificationCode(ctx, s.notifier, s.logger, "redis", key, code, now.Add(s.ttl))
	return code, nil
}

func (s *RedisVerificationCodeStore) Verify(ctx context.Context, ownerKey, code string) (bool, error) {
	key := normalizeOwnerKey(ownerKey)
	if key == "" || code == "" {
		observability.RecordVerificationCodeEvent(ctx, "redis", "verify", verifyOutcomeMissing)
		return false, nil
	}
	res, err := redisVerifyCodeScript.Run(
		ctx,
		s.client,
		[]string{s.recordKey(key)},
		code,
		s.now().UnixMilli(),
		s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		observability.RecordVerificationCodeEvent(ctx, "redis", "verify", "error")
		return false, fmt.Errorf("verify code: %w", err)
	}

	outcome := verifyOutcomeMissing
	switch res {
	case 1:
		outcome = verifyOutcomeConsumed
	case -1:
		outcome = verifyOutcomeExpired
	case -2:
		outcome = verifyOutcomeMismatch
	}
	observability.RecordVerificationCodeEvent(ctx, "redis", "verify", outcome)
	return outcome == verifyOutcomeConsumed, nil
}

// Owner keys carry e-mail addresses; only their digest reaches Redis.
func (s *RedisVerificationCodeStore) recordKey(ownerKey string) string {
	return fmt.Sprintf("%s:verification_code:%s", s.prefix, hashKey(ownerKey))
}

func hashKey(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
