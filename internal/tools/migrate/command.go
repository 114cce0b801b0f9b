package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/domain"
	"github.com/sandeepkv93/shooter-auth/internal/tools/common"
)

const toolName = "migrate"

func NewRootCommand() *cobra.Command {
	opts := &common.Options{}
	cmd := &cobra.Command{
		Use:   toolName,
		Short: "Account database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.CI, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newCommand(opts, "up", "Apply schema migrations", up),
		newCommand(opts, "status", "Check database reachability and schema state", status),
		newCommand(opts, "plan", "Show what up would change without applying it", plan),
	)
	return cmd
}

type step func(ctx context.Context, opts *common.Options) ([]string, error)

func newCommand(opts *common.Options, use, short string, fn step) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, toolName, use, func(ctx context.Context) ([]string, error) {
				return fn(ctx, opts)
			})
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func up(ctx context.Context, opts *common.Options) ([]string, error) {
	cfg, db, err := common.LoadConfigDB(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	defer common.CloseDB(db)

	if err := database.Migrate(db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return []string{"schema migration applied", "driver: " + cfg.DatabaseDriver}, nil
}

func status(ctx context.Context, opts *common.Options) ([]string, error) {
	cfg, db, err := common.LoadConfigDB(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	defer common.CloseDB(db)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	details := []string{"database reachable", "driver: " + cfg.DatabaseDriver}
	if !db.Migrator().HasTable(&domain.Account{}) {
		return append(details, "accounts table: missing (run migrate up)"), nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Account{}).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	return append(details, fmt.Sprintf("accounts table: present (%d rows)", n)), nil
}

func plan(ctx context.Context, opts *common.Options) ([]string, error) {
	_, db, err := common.LoadConfigDB(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	defer common.CloseDB(db)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	details := []string{"would AutoMigrate: accounts"}
	if db.Migrator().HasTable(&domain.Account{}) {
		details = append(details, "accounts table exists; only missing columns and indexes would be added")
	} else {
		details = append(details, "accounts table would be created with a unique identifier index")
	}
	return append(details, "no mutation executed in plan mode"), nil
}
