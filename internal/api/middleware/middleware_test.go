package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cyclebot/pkg/crypto"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// ============ TokenAuth ============

func TestTokenAuth(t *testing.T) {
	hash, err := crypto.HashToken("operator-token", 4)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}

	tests := []struct {
		name       string
		hash       string
		header     string
		query      string
		upgrade    bool
		wantStatus int
	}{
		{"disabled", "", "", "", false, http.StatusOK},
		{"missing header", hash, "", "", false, http.StatusUnauthorized},
		{"wrong scheme", hash, "Basic b3A6cHc=", "", false, http.StatusUnauthorized},
		{"wrong token", hash, "Bearer nope", "", false, http.StatusUnauthorized},
		{"valid token", hash, "Bearer operator-token", "", false, http.StatusOK},
		{"lowercase scheme", hash, "bearer operator-token", "", false, http.StatusOK},
		{"query token for websocket", hash, "", "operator-token", true, http.StatusOK},
		{"query token without upgrade", hash, "", "operator-token", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTokenAuth(tt.hash).Middleware(okHandler)

			target := "/api/v1/engine/status"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestTokenAuth_CachesAcceptedToken(t *testing.T) {
	hash, err := crypto.HashToken("operator-token", 4)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	a := NewTokenAuth(hash)

	if !a.verify("operator-token") || !a.hasToken {
		t.Fatal("valid token must be accepted and cached")
	}
	if a.verify("other") {
		t.Error("other token must be rejected")
	}
	if !a.verify("operator-token") {
		t.Error("cached token must stay accepted")
	}
}

// ============ CORS ============

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://ui.example"})(okHandler)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed", http.MethodGet, "https://ui.example", "https://ui.example", http.StatusOK},
		{"foreign", http.MethodGet, "https://evil.example", "", http.StatusOK},
		{"no origin", http.MethodGet, "", "*", http.StatusOK},
		{"preflight", http.MethodOptions, "https://ui.example", "https://ui.example", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/engine/start", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORS_DefaultDevOrigins(t *testing.T) {
	h := CORS(nil)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("dev origin must be allowed by default")
	}
}

// ============ Logging / Recovery ============

func TestLogging_RequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("request id must be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request id = %q, want propagated", got)
	}
}

func TestResponseWriter_Counts(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	_, _ = rw.Write([]byte("hello"))

	if rw.statusCode != http.StatusCreated || rw.written != 5 {
		t.Errorf("status %d, written %d", rw.statusCode, rw.written)
	}
	// httptest.ResponseRecorder не поддерживает Hijack
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected hijack error")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
