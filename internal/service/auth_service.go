package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sandeepkv93/shooter-auth/internal/domain"
	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/repository"
	"github.com/sandeepkv93/shooter-auth/internal/security"
)

const (
	emailMinLen    = 4
	emailMaxLen    = 36
	passwordMinLen = 8
	passwordMaxLen = 36

	accountStatusActive = "active"
)

var (
	ErrInvalidEmail            = errors.New("email must be a valid address of 4 to 36 characters")
	ErrWeakPassword            = errors.New("password must be 8 to 36 characters")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidVerificationCode = errors.New("invalid or expired verification code")
	ErrAccountExists           = errors.New("account already registered")
	ErrTooManyAttempts         = errors.New("too many failed attempts")
)

// CooldownError reports an active abuse-guard cooldown. It matches
// ErrTooManyAttempts under errors.Is.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts, e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// AuthResult is what a successful sign-in, registration or reset returns.
type AuthResult struct {
	Token     string    `json:"token"`
	Login     string    `json:"login"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthService struct {
	accounts repository.AccountRepository
	codes    VerificationCodeStore
	tokens   *security.SessionTokenManager
	abuse    AuthAbuseGuard
	tokenTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// decoy is verified against when the account does not exist so unknown
	// identifiers cost the same as wrong passwords.
	decoy string
}

func NewAuthService(
	accounts repository.AccountRepository,
	codes VerificationCodeStore,
	tokens *security.SessionTokenManager,
	abuse AuthAbuseGuard,
	tokenTTL time.Duration,
	logger *slog.Logger,
) (*AuthService, error) {
	if abuse == nil {
		abuse = NewNoopAuthAbuseGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	decoy, err := security.HashPassword("decoy-credential")
	if err != nil {
		return nil, fmt.Errorf("prepare decoy credential: %w", err)
	}
	return &AuthService{
		accounts: accounts,
		codes:    codes,
		tokens:   tokens,
		abuse:    abuse,
		tokenTTL: tokenTTL,
		now:      time.Now,
		logger:   logger,
		decoy:    decoy,
	}, nil
}

func (s *AuthService) RequestRegistrationCode(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.accounts.FindByIdentifier(ctx, email); err == nil {
		observability.RecordAuthFlowEvent(ctx, "register_code", "conflict")
		return ErrAccountExists
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return err
	}
	if _, err := s.codes.Generate(ctx, VerificationOwnerKey(PurposeRegister, email)); err != nil {
		observability.RecordAuthFlowEvent(ctx, "register_code", "error")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "register_code", "issued")
	return nil
}

func (s *AuthService) Register(ctx context.Context, email, password, code, ip string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if _, err := s.accounts.FindByIdentifier(ctx, email); err == nil {
		observability.RecordAuthFlowEvent(ctx, "register", "conflict")
		return nil, ErrAccountExists
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if err := s.consumeCode(ctx, PurposeRegister, email, code, ip); err != nil {
		observability.RecordAuthFlowEvent(ctx, "register", "code_rejected")
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Identifier:   email,
		PasswordHash: hash,
		Status:       accountStatusActive,
		LastLoginAt:  s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			observability.RecordAuthFlowEvent(ctx, "register", "conflict")
			return nil, ErrAccountExists
		}
		return nil, err
	}
	observability.RecordAuthFlowEvent(ctx, "register", "success")
	return s.issue(account)
}

// Login never reveals whether the identifier exists.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*AuthResult, error) {
	ctx, span := observability.StartAuthSpan(ctx, "login")
	defer span.End()

	identifier := normalizeOwnerKey(email)
	if identifier == "" || password == "" {
		observability.RecordAuthLogin(ctx, "failure")
		return nil, ErrInvalidCredentials
	}
	if err := s.checkCooldown(ctx, AuthAbuseScopeLogin, identifier, ip); err != nil {
		observability.RecordAuthLogin(ctx, "throttled")
		return nil, err
	}

	account, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}
	if account == nil {
		security.VerifyPassword(s.decoy, password)
		return nil, s.loginFailed(ctx, identifier, ip)
	}
	if !security.VerifyPassword(account.PasswordHash, password) || account.Status != accountStatusActive {
		return nil, s.loginFailed(ctx, identifier, ip)
	}

	if err := s.abuse.Reset(ctx, AuthAbuseScopeLogin, identifier, ip); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard reset failed", "scope", AuthAbuseScopeLogin, "error", err)
	}
	account.LastLoginAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		s.logger.WarnContext(ctx, "record last login failed", "account_id", account.ID, "error", err)
	}
	observability.RecordAuthLogin(ctx, "success")
	return s.issue(account)
}

func (s *AuthService) loginFailed(ctx context.Context, identifier, ip string) error {
	observability.RecordAuthLogin(ctx, "failure")
	if _, err := s.abuse.RegisterFailure(ctx, AuthAbuseScopeLogin, identifier, ip); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard failure bump failed", "scope", AuthAbuseScopeLogin, "error", err)
	}
	return ErrInvalidCredentials
}

// RequestPasswordReset succeeds silently for unknown accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.accounts.FindByIdentifier(ctx, email); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthFlowEvent(ctx, "password_reset_code", "unknown_account")
			return nil
		}
		return err
	}
	if _, err := s.codes.Generate(ctx, VerificationOwnerKey(PurposePasswordReset, email)); err != nil {
		observability.RecordAuthFlowEvent(ctx, "password_reset_code", "error")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "password_reset_code", "issued")
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, password, code, ip string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := s.consumeCode(ctx, PurposePasswordReset, email, code, ip); err != nil {
		observability.RecordAuthFlowEvent(ctx, "password_reset", "code_rejected")
		return nil, err
	}

	account, err := s.accounts.FindByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidVerificationCode
		}
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account.PasswordHash = hash
	account.LastLoginAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}
	if err := s.abuse.Reset(ctx, AuthAbuseScopeLogin, email, ip); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard reset failed", "scope", AuthAbuseScopeLogin, "error", err)
	}
	observability.RecordAuthFlowEvent(ctx, "password_reset", "success")
	return s.issue(account)
}

// Authenticate resolves a bearer token to its account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Account, error) {
	subject, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByIdentifier(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, security.ErrTokenInvalid
		}
		return nil, err
	}
	if account.Status != accountStatusActive {
		return nil, security.ErrTokenInvalid
	}
	return account, nil
}

func (s *AuthService) consumeCode(ctx context.Context, purpose VerificationPurpose, email, code, ip string) error {
	ctx, span := observability.StartAuthSpan(ctx, "verify_code", attribute.String("auth.purpose", string(purpose)))
	defer span.End()

	ownerKey := VerificationOwnerKey(purpose, email)
	if err := s.checkCooldown(ctx, AuthAbuseScopeVerifyCode, ownerKey, ip); err != nil {
		return err
	}
	ok, err := s.codes.Verify(ctx, ownerKey, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.abuse.RegisterFailure(ctx, AuthAbuseScopeVerifyCode, ownerKey, ip); err != nil {
			s.logger.WarnContext(ctx, "auth abuse guard failure bump failed", "scope", AuthAbuseScopeVerifyCode, "error", err)
		}
		return ErrInvalidVerificationCode
	}
	if err := s.abuse.Reset(ctx, AuthAbuseScopeVerifyCode, ownerKey, ip); err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard reset failed", "scope", AuthAbuseScopeVerifyCode, "error", err)
	}
	return nil
}

// checkCooldown fails open when the guard backend errors.
func (s *AuthService) checkCooldown(ctx context.Context, scope AuthAbuseScope, identity, ip string) error {
	retryAfter, err := s.abuse.Check(ctx, scope, identity, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "auth abuse guard check failed", "scope", scope, "error", err)
		return nil
	}
	if retryAfter > 0 {
		return &CooldownError{RetryAfter: retryAfter}
	}
	return nil
}

func (s *AuthService) issue(account *domain.Account) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(account.Identifier, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &AuthResult{
		Token:     token,
		Login:     account.Identifier,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = normalizeOwnerKey(email)
	if n := utf8.RuneCountInString(email); n < emailMinLen || n > emailMaxLen {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	if n := utf8.RuneCountInString(password); n < passwordMinLen || n > passwordMaxLen {
		return ErrWeakPassword
	}
	return nil
}
