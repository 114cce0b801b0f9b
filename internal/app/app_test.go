package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/shooter-auth/internal/config"
	"github.com/sandeepkv93/shooter-auth/internal/service"
)

func TestServeStopsCleanlyOnCancel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	codes := service.NewInMemoryVerificationCodeStore(time.Minute, service.NewDevVerificationCodeNotifier(log), log)
	cfg := &config.Config{VerificationCodeCleanupInterval: 10 * time.Millisecond, ShutdownTimeout: 2 * time.Second}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	a := New(cfg, log, srv, nil, db, nil, codes)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request running server: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err == nil {
		t.Fatal("expected database closed after shutdown")
	}
}

func TestDurationOr(t *testing.T) {
	if durationOr(0, time.Second) != time.Second || durationOr(time.Minute, time.Second) != time.Minute {
		t.Fatal("unexpected durationOr result")
	}
}
