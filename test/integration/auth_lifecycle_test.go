package integration

import (
	"net/http"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/shooter-auth/internal/service"
)

func TestAuthLifecycleMemoryBackend(t *testing.T) {
	runAuthLifecycle(t, newTestServer(t, testServerOptions{}))
}

func TestAuthLifecycleRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	runAuthLifecycle(t, newTestServer(t, testServerOptions{redis: client}))
}

func runAuthLifecycle(t *testing.T, s *testServer) {
	const email = "Player@Example.com"

	registered := s.register(t, email, "first-password")
	if registered.Login != "player@example.com" {
		t.Fatalf("expected normalized login, got %q", registered.Login)
	}

	resp, env := s.do(t, http.MethodGet, "/api/v1/me", nil, registered.Token)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("me with fresh token: status=%d", resp.StatusCode)
	}

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/register/code", map[string]string{"email": email}, "")
	if resp.StatusCode != http.StatusConflict || env.Error == nil || env.Error.Code != "CONFLICT" {
		t.Fatalf("expected 409 for registered email, got %d", resp.StatusCode)
	}

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "wrong-password"}, "")
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
	_, unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ghost@example.com", "password": "whatever1"}, "")
	if unknown.Error == nil || unknown.Error.Message != env.Error.Message {
		t.Fatal("unknown account and wrong password must be indistinguishable")
	}

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "first-password"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status=%d", resp.StatusCode)
	}
	decodeAuth(t, env)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/password/code", map[string]string{"email": "ghost@example.com"}, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("password code for unknown account must look accepted, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/password/code", map[string]string{"email": email}, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("password code: status=%d", resp.StatusCode)
	}
	code := s.notifier.last(t, service.PurposePasswordReset, email)

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{
		"email": email, "password": "second-password", "code": code,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("password reset: status=%d error=%+v", resp.StatusCode, env.Error)
	}
	decodeAuth(t, env)

	resp, env = s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{
		"email": email, "password": "third-password", "code": code,
	}, "")
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "INVALID_CODE" {
		t.Fatalf("expected reused reset code rejected, got %d", resp.StatusCode)
	}

	if resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "first-password"}, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password must stop working, got %d", resp.StatusCode)
	}
	if resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "second-password"}, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("new password must work, got %d", resp.StatusCode)
	}
}

func TestRegistrationCodeIsPurposeBound(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	const email = "bound@example.com"
	s.register(t, email, "first-password")

	s.do(t, http.MethodPost, "/api/v1/auth/password/code", map[string]string{"email": email}, "")
	resetCode := s.notifier.last(t, service.PurposePasswordReset, email)

	resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "other@example.com", "password": "first-password", "code": resetCode,
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("code issued for another owner must be rejected, got %d", resp.StatusCode)
	}
}

func TestMeRejectsBadTokens(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	for _, token := range []string{"", "garbage", "a.b.c"} {
		resp, env := s.do(t, http.MethodGet, "/api/v1/me", nil, token)
		if resp.StatusCode != http.StatusUnauthorized || env.Success {
			t.Fatalf("token %q: expected 401, got %d", token, resp.StatusCode)
		}
	}
}
