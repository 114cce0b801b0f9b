package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sandeepkv93/shooter-auth/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newAccountTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Account{}); err != nil {
		t.Fatalf("migrate accounts: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestAccountRepositoryCreateFindUpdate(t *testing.T) {
	repo := NewAccountRepository(newAccountTestDB(t))
	ctx := context.Background()

	acc := &domain.Account{Identifier: "player@example.com", PasswordHash: "c2FsdA==:ZGlnZXN0"}
	if err := repo.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.ID == 0 {
		t.Fatal("expected generated id")
	}

	got, err := repo.FindByIdentifier(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PasswordHash != acc.PasswordHash || got.Status != "active" {
		t.Fatalf("unexpected account %+v", got)
	}

	got.PasswordHash = "bmV3:aGFzaA=="
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := repo.FindByIdentifier(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if again.PasswordHash != "bmV3:aGFzaA==" {
		t.Fatalf("expected replaced credential, got %q", again.PasswordHash)
	}
}

func TestAccountRepositoryNotFoundAndDuplicate(t *testing.T) {
	repo := NewAccountRepository(newAccountTestDB(t))
	ctx := context.Background()

	if _, err := repo.FindByIdentifier(ctx, "missing@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := repo.Create(ctx, &domain.Account{Identifier: "dup@example.com", PasswordHash: "x:y"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := repo.Create(ctx, &domain.Account{Identifier: "dup@example.com", PasswordHash: "x:y"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if err := repo.Update(ctx, &domain.Account{ID: 999, PasswordHash: "x:y", Status: "active"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on update, got %v", err)
	}
}
