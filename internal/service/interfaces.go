package service

import (
	"context"

	"github.com/sandeepkv93/shooter-auth/internal/domain"
)

type AuthServiceInterface interface {
	RequestRegistrationCode(ctx context.Context, email string) error
	Register(ctx context.Context, email, password, code, ip string) (*AuthResult, error)
	Login(ctx context.Context, email, password, ip string) (*AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, password, code, ip string) (*AuthResult, error)
	Authenticate(ctx context.Context, token string) (*domain.Account, error)
}

var _ AuthServiceInterface = (*AuthService)(nil)
