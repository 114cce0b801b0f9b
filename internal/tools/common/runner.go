package common

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/shooter-auth/internal/config"
	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/tools/ui"
)

// Options are the flags every tool command shares.
type Options struct {
	EnvFile string
	Timeout time.Duration
	CI      bool
}

type Action func(ctx context.Context) ([]string, error)

// Run executes action either headless (CI mode, JSON result on stdout) or
// behind the interactive progress view, and counts the run by outcome.
func Run(opts *Options, tool, command string, action Action) ([]string, error) {
	var (
		details []string
		err     error
	)
	if opts.CI {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		details, err = action(ctx)
		cancel()
		PrintCIResult(err == nil, tool+" "+command, details, err)
	} else {
		details, err = ui.Run(tool+" "+command, opts.Timeout, action)
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.RecordToolCommandRun(context.Background(), tool, command, status)
	return details, err
}

func LoadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func CloseDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
