package database

import (
	"github.com/sandeepkv93/shooter-auth/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
	)
}
