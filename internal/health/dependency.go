package health

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewDBChecker pings the account database. A nil db yields a nil Checker,
// which NewProbeRunner skips.
func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return CheckFunc{CheckName: "db", Fn: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
}

// NewRedisChecker pings the verification-code and abuse-guard backend.
func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return CheckFunc{CheckName: "redis", Fn: func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.New("redis ping timed out")
			}
			return err
		}
		return nil
	}}
}
