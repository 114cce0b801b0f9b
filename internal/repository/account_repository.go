package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/sandeepkv93/shooter-auth/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

//go:generate mockgen -source=account_repository.go -destination=gomock/account_repository_mock.go -package=gomock

// AccountRepository is the account directory. Identifiers are opaque unique
// strings; callers normalize them before lookup.
type AccountRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
}

type GormAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil && isUniqueViolation(err) {
		return ErrAccountExists
	}
	return err
}

func (r *GormAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"password_hash": account.PasswordHash,
			"status":        account.Status,
			"last_login_at": account.LastLoginAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// isUniqueViolation covers both drivers: gorm translates the error when
// TranslateError is enabled, otherwise the raw driver message is inspected.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
