package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func captureDefaultLogger(t *testing.T) *captureHandler {
	t.Helper()
	orig := slog.Default()
	c := &captureHandler{}
	slog.SetDefault(slog.New(c))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return c
}

func TestStructuredRequestLoggerLevelsFollowStatus(t *testing.T) {
	c := captureDefaultLogger(t)

	r := chi.NewRouter()
	r.Use(StructuredRequestLogger)
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) })
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/ok"},
		{http.MethodPost, "/api/v1/auth/login"},
		{http.MethodGet, "/boom"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.RemoteAddr = "198.51.100.10:3456"
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(c.records) != 3 {
		t.Fatalf("expected 3 log records, got %d", len(c.records))
	}
	want := []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError}
	for i, lvl := range want {
		if c.records[i].Level != lvl {
			t.Fatalf("record %d: expected level %v, got %v", i, lvl, c.records[i].Level)
		}
	}

	attrs := recordAttrs(c.records[1])
	if attrs["route"] != "/api/v1/auth/login" || attrs["status"] != "401" {
		t.Fatalf("unexpected route/status attrs %+v", attrs)
	}
	if attrs["client_ip"] != "198.51.100.10" {
		t.Fatalf("expected client_ip without port, got %q", attrs["client_ip"])
	}
}

func TestStructuredRequestLoggerStatusFallbackTo200(t *testing.T) {
	c := captureDefaultLogger(t)

	h := StructuredRequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/none", nil))

	if len(c.records) != 1 {
		t.Fatalf("expected one log record, got %d", len(c.records))
	}
	if got := recordAttrs(c.records[0])["status"]; got != "200" {
		t.Fatalf("expected fallback status 200, got %q", got)
	}
}

func recordAttrs(rec slog.Record) map[string]string {
	out := map[string]string{}
	rec.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}
