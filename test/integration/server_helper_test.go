package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/shooter-auth/internal/database"
	"github.com/sandeepkv93/shooter-auth/internal/http/handler"
	"github.com/sandeepkv93/shooter-auth/internal/http/middleware"
	"github.com/sandeepkv93/shooter-auth/internal/http/router"
	"github.com/sandeepkv93/shooter-auth/internal/repository"
	"github.com/sandeepkv93/shooter-auth/internal/security"
	"github.com/sandeepkv93/shooter-auth/internal/service"
)

const testSigningSecret = "abcdefghijklmnopqrstuvwxyz123456"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// codeCaptureNotifier stands in for the mail relay and remembers the last
// code sent to each owner key.
type codeCaptureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *codeCaptureNotifier) SendVerificationCode(_ context.Context, notification service.VerificationCodeNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = map[string]string{}
	}
	n.codes[notification.OwnerKey] = notification.Code
	return nil
}

func (n *codeCaptureNotifier) last(t *testing.T, purpose service.VerificationPurpose, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	code, ok := n.codes[service.VerificationOwnerKey(purpose, email)]
	if !ok {
		t.Fatalf("no %s code delivered to %s", purpose, email)
	}
	return code
}

type testServerOptions struct {
	redis        redis.UniversalClient
	abusePolicy  service.AuthAbusePolicy
	codeLimitRPM int
}

type testServer struct {
	baseURL  string
	client   *http.Client
	notifier *codeCaptureNotifier
}

func newTestServer(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if opts.abusePolicy == (service.AuthAbusePolicy{}) {
		opts.abusePolicy = service.AuthAbusePolicy{
			FreeAttempts: 5,
			BaseDelay:    2 * time.Second,
			Multiplier:   2,
			MaxDelay:     5 * time.Minute,
			ResetWindow:  30 * time.Minute,
		}
	}
	if opts.codeLimitRPM == 0 {
		opts.codeLimitRPM = 1000
	}

	notifier := &codeCaptureNotifier{}
	var (
		codes   service.VerificationCodeStore
		abuse   service.AuthAbuseGuard
		limiter middleware.Limiter
	)
	if opts.redis != nil {
		codes = service.NewRedisVerificationCodeStore(opts.redis, "it", 15*time.Minute, notifier, log)
		abuse = service.NewRedisAuthAbuseGuard(opts.redis, "it", opts.abusePolicy)
		limiter = middleware.NewRedisFixedWindowLimiter(opts.redis, "it")
	} else {
		codes = service.NewInMemoryVerificationCodeStore(15*time.Minute, notifier, log)
		abuse = service.NewInMemoryAuthAbuseGuard(opts.abusePolicy)
		limiter = middleware.NewLocalFixedWindowLimiter(nil)
	}

	tokens, err := security.NewSessionTokenManager("shooter-auth-it", []byte(testSigningSecret))
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	authSvc, err := service.NewAuthService(repository.NewAccountRepository(db), codes, tokens, abuse, 24*time.Hour, log)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	r := router.NewRouter(router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(authSvc),
		Authenticator:   authSvc,
		CORSOrigins:     []string{"http://localhost:4200"},
		AuthRateLimiter: middleware.NewRateLimiter(limiter, 1000, time.Minute, middleware.FailOpen, "auth"),
		CodeRateLimiter: middleware.NewRateLimiter(limiter, opts.codeLimitRPM, time.Minute, middleware.FailClosed, "code"),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{baseURL: srv.URL, client: srv.Client(), notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (*http.Response, apiEnvelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp, env
}

type authData struct {
	Token string `json:"token"`
	Login string `json:"login"`
}

func decodeAuth(t *testing.T, env apiEnvelope) authData {
	t.Helper()
	var out authData
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode auth data: %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected a session token")
	}
	return out
}

func (s *testServer) register(t *testing.T, email, password string) authData {
	t.Helper()
	resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/register/code", map[string]string{"email": email}, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("register code: status=%d", resp.StatusCode)
	}
	code := s.notifier.last(t, service.PurposeRegister, email)
	resp, env := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": email, "password": password, "code": code,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status=%d error=%+v", resp.StatusCode, env.Error)
	}
	return decodeAuth(t, env)
}
