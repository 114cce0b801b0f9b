package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/shooter-auth/internal/observability"
)

// AuthAbuseScope separates failure counters per flow.
type AuthAbuseScope string

const (
	AuthAbuseScopeLogin      AuthAbuseScope = "login"
	AuthAbuseScopeVerifyCode AuthAbuseScope = "verify_code"
)

type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

// AuthAbuseGuard throttles online guessing of passwords and verification
// codes. Failures are tracked per identity and per client IP; the longer of
// the two cooldowns wins.
type AuthAbuseGuard interface {
	Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error
}

type NoopAuthAbuseGuard struct{}

func NewNoopAuthAbuseGuard() *NoopAuthAbuseGuard {
	return &NoopAuthAbuseGuard{}
}

func (NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error {
	return nil
}

type AuthAbuseGuardOption func(*authAbuseGuardOptions)

type authAbuseGuardOptions struct {
	now func() time.Time
}

func WithAuthAbuseClock(now func() time.Time) AuthAbuseGuardOption {
	return func(o *authAbuseGuardOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyAuthAbuseGuardOptions(opts []AuthAbuseGuardOption) authAbuseGuardOptions {
	o := authAbuseGuardOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type authAbuseEntry struct {
	failCount     int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

type InMemoryAuthAbuseGuard struct {
	mu     sync.Mutex
	policy AuthAbusePolicy
	now    func() time.Time
	data   map[string]authAbuseEntry
}

func NewInMemoryAuthAbuseGuard(policy AuthAbusePolicy, opts ...AuthAbuseGuardOption) *InMemoryAuthAbuseGuard {
	o := applyAuthAbuseGuardOptions(opts)
	return &InMemoryAuthAbuseGuard{
		policy: normalizeAuthAbusePolicy(policy),
		now:    o.now,
		data:   make(map[string]authAbuseEntry),
	}
}

func (g *InMemoryAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	var delay time.Duration
	for _, key := range authAbuseKeys(scope, identity, ip) {
		delay = max(delay, g.activeCooldownLocked(now, key))
	}
	g.mu.Unlock()

	recordAuthAbuseDecision(ctx, scope, "check", delay)
	return delay, nil
}

func (g *InMemoryAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error) {
	now := g.now()
	g.mu.Lock()
	var delay time.Duration
	for _, key := range authAbuseKeys(scope, identity, ip) {
		delay = max(delay, g.bumpLocked(now, key))
	}
	g.mu.Unlock()

	recordAuthAbuseDecision(ctx, scope, "failure", delay)
	return delay, nil
}

func (g *InMemoryAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	g.mu.Lock()
	for _, key := range authAbuseKeys(scope, identity, ip) {
		delete(g.data, key)
	}
	g.mu.Unlock()

	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *InMemoryAuthAbuseGuard) bumpLocked(now time.Time, key string) time.Duration {
	entry := g.data[key]
	if entry.lastFailureAt.IsZero() || now.Sub(entry.lastFailureAt) > g.policy.ResetWindow {
		entry.failCount = 0
	}
	entry.failCount++
	entry.lastFailureAt = now
	delay := g.policy.delayFor(entry.failCount)
	entry.cooldownUntil = now.Add(delay)
	g.data[key] = entry
	return delay
}

func (g *InMemoryAuthAbuseGuard) activeCooldownLocked(now time.Time, key string) time.Duration {
	entry, ok := g.data[key]
	if !ok {
		return 0
	}
	if now.Sub(entry.lastFailureAt) > g.policy.ResetWindow {
		delete(g.data, key)
		return 0
	}
	if !now.Before(entry.cooldownUntil) {
		return 0
	}
	return entry.cooldownUntil.Sub(now)
}

// delayFor grows the cooldown geometrically once the free attempts are used.
func (p AuthAbusePolicy) delayFor(failCount int) time.Duration {
	if failCount <= p.FreeAttempts {
		return 0
	}
	power := math.Pow(p.Multiplier, float64(failCount-p.FreeAttempts-1))
	delay := time.Duration(float64(p.BaseDelay) * power)
	if delay > p.MaxDelay || delay < 0 {
		return p.MaxDelay
	}
	return delay
}

func authAbuseKeys(scope AuthAbuseScope, identity, ip string) [2]string {
	return [2]string{
		string(scope) + ":id:" + normalizeAuthIdentity(identity),
		string(scope) + ":ip:" + normalizeAuthIP(ip),
	}
}

func recordAuthAbuseDecision(ctx context.Context, scope AuthAbuseScope, action string, delay time.Duration) {
	outcome := "ok"
	if delay > 0 {
		outcome = "cooldown"
		observability.RecordAuthAbuseCooldown(ctx, string(scope), action, delay)
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), action, outcome)
}

func normalizeAuthIdentity(identity string) string {
	v := strings.TrimSpace(strings.ToLower(identity))
	if v == "" {
		return "anonymous"
	}
	return v
}

func normalizeAuthIP(ip string) string {
	v := strings.TrimSpace(strings.ToLower(ip))
	if v == "" {
		return "unknown"
	}
	return v
}

func normalizeAuthAbusePolicy(policy AuthAbusePolicy) AuthAbusePolicy {
	if policy.FreeAttempts < 0 {
		policy.FreeAttempts = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = 5 * time.Minute
	}
	if policy.ResetWindow <= 0 {
		policy.ResetWindow = 30 * time.Minute
	}
	return policy
}
