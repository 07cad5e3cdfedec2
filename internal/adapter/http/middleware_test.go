package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/logger"
	"github.com/Strob0t/bizops/internal/middleware"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggerRecordsRouteAndStatus(t *testing.T) {
	buf := captureLogs(t)

	r := chi.NewRouter()
	r.Use(Logger)
	r.Get("/api/v1/tenants/{tenantID}/digest", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/t-42/digest", http.NoBody)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if rec["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", rec["status"])
	}
	if rec["route"] != "/api/v1/tenants/{tenantID}/digest" {
		t.Errorf("expected route pattern, got %v", rec["route"])
	}
	if rec["tenant_id"] != "t-42" {
		t.Errorf("expected tenant_id t-42, got %v", rec["tenant_id"])
	}
}

func TestTenantFromPath(t *testing.T) {
	var got, logged string
	r := chi.NewRouter()
	r.With(tenantFromPath).Get("/tenants/{tenantID}", func(_ http.ResponseWriter, req *http.Request) {
		got = middleware.TenantIDFromContext(req.Context())
		logged = logger.TenantID(req.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tenants/t-7", http.NoBody))
	if got != "t-7" || logged != "t-7" {
		t.Fatalf("expected t-7 in context, got %q / %q", got, logged)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("expected %s header", h)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS("https://admin.example.com")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/catalog", http.NoBody))

	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight must short-circuit with 204, got %d (next called=%v)", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://admin.example.com" {
		t.Errorf("unexpected origin header %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWriteDomainErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		msg  string
	}{
		{"validation", fmt.Errorf("create tenant: %w: slug taken", domain.ErrValidation), http.StatusBadRequest, "slug taken"},
		{"conflict detail", fmt.Errorf("run: %w: daily run already in progress", domain.ErrConflict), http.StatusConflict, "daily run already in progress"},
		{"bare conflict", fmt.Errorf("update: %w", domain.ErrConflict), http.StatusConflict, "resource was modified by another request"},
		{"not found", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound, "thing not found"},
		{"internal", fmt.Errorf("dial tcp: %s", "refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, "thing not found")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, body.Error)
			}
		})
	}
}
