package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/shooter-auth/internal/observability"
)

var redisAuthAbuseBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local key = KEYS[1]
local fail_count = tonumber(redis.call("HGET", key, "fail_count") or "0")
local last_failure_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")

if last_failure_ms == 0 or (now_ms - last_failure_ms) > reset_ms then
  fail_count = 0
end

fail_count = fail_count + 1
local delay = 0
if fail_count > free_attempts then
  delay = math.floor(base_ms * (multiplier ^ (fail_count - free_attempts - 1)))
end
if delay > max_ms then
  delay = max_ms
end

redis.call("HSET", key, "fail_count", tostring(fail_count), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(now_ms + delay))
redis.call("PEXPIRE", key, reset_ms + delay + 60000)
return delay
`)

// RedisAuthAbuseGuard shares failure counters across replicas.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
	now    func() time.Time
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy, opts ...AuthAbuseGuardOption) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "auth_abuse"
	}
	o := applyAuthAbuseGuardOptions(opts)
	return &RedisAuthAbuseGuard{
		client: client,
		prefix: prefix,
		policy: normalizeAuthAbusePolicy(policy),
		now:    o.now,
	}
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	nowMS := g.now().UnixMilli()
	var delay time.Duration
	for _, key := range g.keys(scope, identity, ip) {
		d, err := g.cooldownForKey(ctx, key, nowMS)
		if err != nil {
			observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "error")
			return 0, err
		}
		delay = max(delay, d)
	}
	recordAuthAbuseDecision(ctx, scope, "check", delay)
	return delay, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	nowMS := g.now().UnixMilli()
	var delay time.Duration
	for _, key := range g.keys(scope, identity, ip) {
		d, err := g.bumpKey(ctx, key, nowMS)
		if err != nil {
			observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "failure", "error")
			return 0, err
		}
		delay = max(delay, d)
	}
	recordAuthAbuseDecision(ctx, scope, "failure", delay)
	return delay, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	keys := g.keys(scope, identity, ip)
	if err := g.client.Del(ctx, keys[:]...).Err(); err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "error")
		return err
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *RedisAuthAbuseGuard) bumpKey(ctx context.Context, key string, nowMS int64) (time.Duration, error) {
	result, err := redisAuthAbuseBumpScript.Run(
		ctx,
		g.client,
		[]string{key},
		nowMS,
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Result()
	if err != nil {
		return 0, err
	}
	delayMS, err := parseRedisInt64(result)
	if err != nil {
		return 0, err
	}
	return time.Duration(max(delayMS, 0)) * time.Millisecond, nil
}

func (g *RedisAuthAbuseGuard) cooldownForKey(ctx context.Context, key string, nowMS int64) (time.Duration, error) {
	values, err := g.client.HMGet(ctx, key, "last_failure_ms", "cooldown_until_ms").Result()
	if err != nil {
		return 0, err
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return 0, nil
	}
	lastFailureMS, err := parseRedisInt64(values[0])
	if err != nil {
		return 0, err
	}
	cooldownUntilMS, err := parseRedisInt64(values[1])
	if err != nil {
		return 0, err
	}
	if nowMS-lastFailureMS > g.policy.ResetWindow.Milliseconds() || cooldownUntilMS <= nowMS {
		return 0, nil
	}
	return time.Duration(cooldownUntilMS-nowMS) * time.Millisecond, nil
}

func (g *RedisAuthAbuseGuard) keys(scope AuthAbuseScope, identity, ip string) [2]string {
	return [2]string{
		fmt.Sprintf("%s:%s:id:%s", g.prefix, scope, hashKey(normalizeAuthIdentity(identity))),
		fmt.Sprintf("%s:%s:ip:%s", g.prefix, scope, hashKey(normalizeAuthIP(ip))),
	}
}

// parseRedisInt64 accepts script integer replies and HMGET string fields.
func parseRedisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
