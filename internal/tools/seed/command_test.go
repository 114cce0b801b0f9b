package seed

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/repository"
	"github.com/sandeepkv93/shooter-auth/internal/security"
)

func TestSeedAccountCreatesOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	details, err := SeedAccount(ctx, repo, " Player@Example.com ", "password123")
	if err != nil || len(details) != 1 || !strings.Contains(details[0], "created") {
		t.Fatalf("unexpected first seed result %v %v", details, err)
	}
	account, err := repo.FindByIdentifier(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("find seeded account: %v", err)
	}
	if !security.VerifyPassword(account.PasswordHash, "password123") {
		t.Fatal("expected seeded password to verify")
	}

	details, err = SeedAccount(ctx, repo, "player@example.com", "other-password")
	if err != nil || !strings.Contains(details[0], "already exists") {
		t.Fatalf("expected idempotent second seed, got %v %v", details, err)
	}
}

func TestSeedAccountRequiresFlags(t *testing.T) {
	if _, err := SeedAccount(context.Background(), nil, "", "x"); err == nil {
		t.Fatal("expected missing email error")
	}
}
