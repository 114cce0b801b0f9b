package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/security"
)

const (
	VerificationCodeDigits     = 6
	DefaultVerificationCodeTTL = 15 * time.Minute
)

var ErrInvalidOwnerKey = errors.New("verification owner key is empty")

// VerificationPurpose namespaces owner keys so a code issued for one flow is
// never accepted by another.
type VerificationPurpose string

const (
	PurposeRegister      VerificationPurpose = "register"
	PurposePasswordReset VerificationPurpose = "password_reset"
)

// VerificationCodeStore holds at most one pending code per owner key.
// Verify consumes the code on success; concurrent callers presenting the same
// valid code see exactly one true.
type VerificationCodeStore interface {
	Generate(ctx context.Context, ownerKey string) (string, error)
	Verify(ctx context.Context, ownerKey, code string) (bool, error)
}

func VerificationOwnerKey(purpose VerificationPurpose, identifier string) string {
	return string(purpose) + ":" + normalizeOwnerKey(identifier)
}

// splitOwnerKey reverses VerificationOwnerKey. Keys without a known purpose
// are returned whole as the recipient.
func splitOwnerKey(ownerKey string) (VerificationPurpose, string) {
	prefix, rest, ok := strings.Cut(ownerKey, ":")
	if ok {
		switch p := VerificationPurpose(prefix); p {
		case PurposeRegister, PurposePasswordReset:
			return p, rest
		}
	}
	return "", ownerKey
}

func normalizeOwnerKey(ownerKey string) string {
	return strings.ToLower(strings.TrimSpace(ownerKey))
}

type VerificationCodeStoreOption func(*verificationCodeStoreOptions)

type verificationCodeStoreOptions struct {
	now func() time.Time
}

// WithVerificationClock replaces time.Now for record timestamps and expiry.
func WithVerificationClock(now func() time.Time) VerificationCodeStoreOption {
	return func(o *verificationCodeStoreOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyVerificationCodeStoreOptions(opts []VerificationCodeStoreOption) verificationCodeStoreOptions {
	o := verificationCodeStoreOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type verificationRecord struct {
	code      string
	createdAt time.Time
}

type InMemoryVerificationCodeStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	notifier VerificationCodeNotifier
	logger   *slog.Logger
	records  map[string]verificationRecord
}

func NewInMemoryVerificationCodeStore(ttl time.Duration, notifier VerificationCodeNotifier, logger *slog.Logger, opts ...VerificationCodeStoreOption) *InMemoryVerificationCodeStore {
	if ttl <= 0 {
		ttl = DefaultVerificationCodeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := applyVerificationCodeStoreOptions(opts)
	return &InMemoryVerificationCodeStore{
		ttl:      ttl,
		now:      o.now,
		notifier: notifier,
		logger:   logger,
		records:  make(map[string]verificationRecord),
	}
}

func (s *InMemoryVerificationCodeStore) Generate(ctx context.Context, ownerKey string) (string, error) {
	key := normalizeOwnerKey(ownerKey)
	if key == "" {
		return "", ErrInvalidOwnerKey
	}
	code, err := security.NewNumericCode(VerificationCodeDigits)
	if err != nil {
		observability.RecordVerificationCodeEvent(ctx, "memory", "generate", "error")
		return "", err
	}
	now := s.now()

	s.mu.Lock()
	s.records[key] = verificationRecord{code: code, createdAt: now}
	s.mu.Unlock()

	observability.RecordVerificationCodeEvent(ctx, "memory", "generate", "issued")
	deliverVerificationCode(ctx, s.notifier, s.logger, "memory", key, code, now.Add(s.ttl))
	return code, nil
}

func (s *InMemoryVerificationCodeStore) Verify(ctx context.Context, ownerKey, code string) (bool, error) {
	key := normalizeOwnerKey(ownerKey)
	if key == "" || code == "" {
		observability.RecordVerificationCodeEvent(ctx, "memory", "verify", "missing")
		return false, nil
	}
	now := s.now()

	s.mu.Lock()
	outcome := s.consumeLocked(key, code, now)
	s.mu.Unlock()

	observability.RecordVerificationCodeEvent(ctx, "memory", "verify", outcome)
	return outcome == verifyOutcomeConsumed, nil
}

const (
	verifyOutcomeConsumed = "consumed"
	verifyOutcomeMissing  = "missing"
	verifyOutcomeExpired  = "expired"
	verifyOutcomeMismatch = "mismatch"
)

func (s *InMemoryVerificationCodeStore) consumeLocked(key, code string, now time.Time) string {
	rec, ok := s.records[key]
	if !ok {
		return verifyOutcomeMissing
	}
	if s.expired(rec, now) {
		delete(s.records, key)
		return verifyOutcomeExpired
	}
	if subtle.ConstantTimeCompare([]byte(rec.code), []byte(code)) != 1 {
		return verifyOutcomeMismatch
	}
	delete(s.records, key)
	return verifyOutcomeConsumed
}

func (s *InMemoryVerificationCodeStore) expired(rec verificationRecord, now time.Time) bool {
	return now.Sub(rec.createdAt) > s.ttl
}

// Sweep drops expired records and returns how many were removed.
func (s *InMemoryVerificationCodeStore) Sweep(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for key, rec := range s.records {
		if s.expired(rec, now) {
			delete(s.records, key)
			removed++
		}
	}
	s.mu.Unlock()
	observability.RecordVerificationCodesSwept(ctx, removed)
	return removed
}

// Len reports the number of pending records, expired or not.
func (s *InMemoryVerificationCodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RunCleanup sweeps expired records every interval until ctx is done.
func (s *InMemoryVerificationCodeStore) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(ctx); removed > 0 {
				s.logger.Debug("verification code cleanup removed expired records", "removed", removed)
			}
		}
	}
}

// deliverVerificationCode runs after the record is stored. A failed delivery
// leaves the record valid until its TTL.
func deliverVerificationCode(ctx context.Context, notifier VerificationCodeNotifier, logger *slog.Logger, store, ownerKey, code string, expiresAt time.Time) {
	if notifier == nil {
		return
	}
	purpose, recipient := splitOwnerKey(ownerKey)
	err := notifier.SendVerificationCode(ctx, VerificationCodeNotification{
		OwnerKey:  ownerKey,
		Purpose:   purpose,
		Recipient: recipient,
		Code:      code,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		observability.RecordVerificationCodeEvent(ctx, store, "notify", "error")
		logger.WarnContext(ctx, "verification code delivery failed",
			"purpose", string(purpose),
			"recipient", recipient,
			"error", err,
		)
		return
	}
	observability.RecordVerificationCodeEvent(ctx, store, "notify", "sent")
}
