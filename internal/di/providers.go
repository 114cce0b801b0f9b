package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/shooter-auth/internal/app"
	"github.com/sandeepkv93/shooter-auth/internal/config"
	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/health"
	"github.com/sandeepkv93/shooter-auth/internal/http/handler"
	"github.com/sandeepkv93/shooter-auth/internal/http/middleware"
	"github.com/sandeepkv93/shooter-auth/internal/http/router"
	"github.com/sandeepkv93/shooter-auth/internal/observability"
	"github.com/sandeepkv93/shooter-auth/internal/repository"
	"github.com/sandeepkv93/shooter-auth/internal/security"
	"github.com/sandeepkv93/shooter-auth/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(repository.NewAccountRepository)

var SecuritySet = wire.NewSet(provideSessionTokenManager)

var ServiceSet = wire.NewSet(
	provideVerificationCodeNotifier,
	provideVerificationCodeStore,
	provideAuthAbuseGuard,
	provideAuthService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	provideRateLimitBackend,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, observability.NewBootstrapLogger(cfg))
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// provideRedisClient returns nil unless Redis backs the verification codes.
func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if cfg.VerificationCodeStore != config.StoreRedis {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideSessionTokenManager(cfg *config.Config, logger *slog.Logger) (*security.SessionTokenManager, error) {
	secret := []byte(cfg.SessionSigningSecret)
	if cfg.SessionSigningKeyEphemeral {
		key, err := security.NewEphemeralSigningKey()
		if err != nil {
			return nil, err
		}
		logger.Warn("using ephemeral session signing key; sessions will not survive a restart")
		secret = key
	}
	return security.NewSessionTokenManager(cfg.SessionTokenIssuer, secret)
}

func provideVerificationCodeNotifier(cfg *config.Config, logger *slog.Logger) service.VerificationCodeNotifier {
	if cfg.Notifier == config.NotifierSMTP {
		return service.NewSMTPVerificationCodeNotifier(service.SMTPSettings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
		})
	}
	return service.NewDevVerificationCodeNotifier(logger)
}

func provideVerificationCodeStore(
	cfg *config.Config,
	redisClient redis.UniversalClient,
	notifier service.VerificationCodeNotifier,
	logger *slog.Logger,
) service.VerificationCodeStore {
	if redisClient != nil {
		return service.NewRedisVerificationCodeStore(redisClient, cfg.RedisPrefix, cfg.VerificationCodeTTL, notifier, logger)
	}
	return service.NewInMemoryVerificationCodeStore(cfg.VerificationCodeTTL, notifier, logger)
}

func provideAuthAbuseGuard(cfg *config.Config, redisClient redis.UniversalClient) service.AuthAbuseGuard {
	policy := service.AuthAbusePolicy{
		FreeAttempts: cfg.AuthAbuseFreeAttempts,
		BaseDelay:    cfg.AuthAbuseBaseDelay,
		Multiplier:   cfg.AuthAbuseMultiplier,
		MaxDelay:     cfg.AuthAbuseMaxDelay,
		ResetWindow:  cfg.AuthAbuseResetWindow,
	}
	if redisClient != nil {
		return service.NewRedisAuthAbuseGuard(redisClient, cfg.RedisPrefix, policy)
	}
	return service.NewInMemoryAuthAbuseGuard(policy)
}

func provideAuthService(
	cfg *config.Config,
	accounts repository.AccountRepository,
	codes service.VerificationCodeStore,
	tokens *security.SessionTokenManager,
	abuse service.AuthAbuseGuard,
	logger *slog.Logger,
) (*service.AuthService, error) {
	return service.NewAuthService(accounts, codes, tokens, abuse, cfg.SessionTokenTTL, logger)
}

// provideRateLimitBackend shares windows through Redis when it is configured
// so limits hold across replicas.
func provideRateLimitBackend(cfg *config.Config, redisClient redis.UniversalClient) middleware.Limiter {
	if redisClient != nil {
		return middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RedisPrefix)
	}
	return middleware.NewLocalFixedWindowLimiter(time.Now)
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	authSvc service.AuthServiceInterface,
	limiter middleware.Limiter,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:     authHandler,
		Authenticator:   authSvc,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		AuthRateLimiter: middleware.NewRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, middleware.FailOpen, "auth"),
		CodeRateLimiter: middleware.NewRateLimiter(limiter, cfg.AuthCodeRateLimitRPM, time.Minute, middleware.FailClosed, "code"),
		Readiness:       readiness,
		EnableOTelHTTP:  cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, 0,
		health.NewDBChecker(db),
		health.NewRedisChecker(redisClient),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	codes service.VerificationCodeStore,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient, codes)
}
