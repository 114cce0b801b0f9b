package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/domain"
	"github.com/sandeepkv93/shooter-auth/internal/repository"
	"github.com/sandeepkv93/shooter-auth/internal/security"
	"github.com/sandeepkv93/shooter-auth/internal/tools/common"
)

const toolName = "seed"

var errNotLocal = errors.New("seeding accounts is only allowed in local environments")

type accountFlags struct {
	email    string
	password string
}

func NewRootCommand() *cobra.Command {
	opts := &common.Options{}
	cmd := &cobra.Command{Use: toolName, Short: "Local development account seeding"}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.CI, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newAccountCommand(opts), newDryRunCommand(opts))
	return cmd
}

func newAccountCommand(opts *common.Options) *cobra.Command {
	flags := &accountFlags{}
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create a player account without the e-mail code round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, toolName, "account", func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.EnvFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				if !cfg.IsLocal() {
					return nil, errNotLocal
				}
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				return SeedAccount(ctx, repository.NewAccountRepository(db), flags.email, flags.password)
			})
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&flags.password, "password", "", "account password")
	return cmd
}

func newDryRunCommand(opts *common.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, toolName, "dry-run", func(ctx context.Context) ([]string, error) {
				cfg, db, err := common.LoadConfigDB(opts.EnvFile)
				if err != nil {
					return nil, err
				}
				defer common.CloseDB(db)
				details := []string{
					"would migrate the accounts table",
					"would insert one active account with a salted password credential",
				}
				if !cfg.IsLocal() {
					details = append(details, "refused: APP_ENV="+cfg.Env+" is not local")
				}
				return details, nil
			})
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

// SeedAccount inserts one active account. Existing accounts are left as they
// are.
func SeedAccount(ctx context.Context, accounts repository.AccountRepository, email, password string) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("--email and --password are required")
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	err = accounts.Create(ctx, &domain.Account{
		Identifier:   email,
		PasswordHash: hash,
		Status:       "active",
	})
	switch {
	case errors.Is(err, repository.ErrAccountExists):
		return []string{fmt.Sprintf("account already exists: %s", email)}, nil
	case err != nil:
		return nil, err
	}
	return []string{fmt.Sprintf("account created: %s", email)}, nil
}
