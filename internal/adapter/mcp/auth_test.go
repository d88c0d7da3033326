package mcp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	lfmcp "github.com/Strob0t/LoopForge/internal/adapter/mcp"
)

func authProbe(t *testing.T, handler http.Handler, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled without token", func(t *testing.T) {
		h := lfmcp.AuthMiddleware("", next)
		if code := authProbe(t, h, ""); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		h := lfmcp.AuthMiddleware("secret", next)
		if code := authProbe(t, h, ""); code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		h := lfmcp.AuthMiddleware("secret", next)
		if code := authProbe(t, h, "Bearer wrong"); code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", code)
		}
	})

	t.Run("bearer token", func(t *testing.T) {
		h := lfmcp.AuthMiddleware("secret", next)
		if code := authProbe(t, h, "Bearer secret"); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})

	t.Run("bare token", func(t *testing.T) {
		h := lfmcp.AuthMiddleware("secret", next)
		if code := authProbe(t, h, "secret"); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})
}
