package security

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	MinSigningSecretLen = 32
	sessionKeyLen       = 64
	sessionKeyInfo      = "shooter-auth session token v1"
)

var (
	ErrWeakSigningKey      = errors.New("session signing key must be at least 32 bytes")
	ErrInvalidSessionTTL   = errors.New("session token ttl must be positive")
	ErrInvalidSessionToken = errors.New("invalid session token")
	ErrTokenMalformed      = fmt.Errorf("%w: malformed", ErrInvalidSessionToken)
	ErrTokenExpired        = fmt.Errorf("%w: expired", ErrInvalidSessionToken)
	ErrTokenInvalid        = fmt.Errorf("%w: signature or claims rejected", ErrInvalidSessionToken)
)

type SessionClaims struct {
	jwt.RegisteredClaims
}

type SessionTokenOption func(*SessionTokenManager)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) SessionTokenOption {
	return func(m *SessionTokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// SessionTokenManager signs and validates stateless HS512 session tokens.
// It holds no mutable state after construction and is safe for concurrent use.
type SessionTokenManager struct {
	issuer string
	key    []byte
	now    func() time.Time
}

func NewSessionTokenManager(issuer string, secret []byte, opts ...SessionTokenOption) (*SessionTokenManager, error) {
	if len(secret) < MinSigningSecretLen {
		return nil, ErrWeakSigningKey
	}
	key := make([]byte, sessionKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha512.New, secret, nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session signing key: %w", err)
	}
	m := &SessionTokenManager{issuer: issuer, key: key, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewEphemeralSigningKey returns random key material for deployments that
// accept losing every session on restart.
func NewEphemeralSigningKey() ([]byte, error) {
	key := make([]byte, sessionKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session signing key: %w", err)
	}
	return key, nil
}

// Issue signs a token for subject and returns it with its exact expiry.
// The exp claim has whole-second precision, so the expiry is rounded up to
// the next second and the token never dies before now+ttl.
func (m *SessionTokenManager) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, ErrInvalidSessionTTL
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("session subject is required")
	}
	now := m.now()
	expiresAt := ceilToSecond(now.Add(ttl))
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

func ceilToSecond(t time.Time) time.Time {
	if floor := t.Truncate(time.Second); !floor.Equal(t) {
		return floor.Add(time.Second)
	}
	return t
}

// Validate returns the subject of a well-formed, correctly signed and
// unexpired token. Every rejection wraps ErrInvalidSessionToken.
func (m *SessionTokenManager) Validate(raw string) (string, error) {
	claims, err := m.Parse(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *SessionTokenManager) Parse(raw string) (*SessionClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrTokenMalformed
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
