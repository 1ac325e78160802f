package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func corsRouter(cfg CORSConfig) *gin.Engine {
	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.GET("/api/v1/report", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/api/v1/slaves", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	path := "/api/v1/slaves"
	if method == http.MethodGet {
		path = "/api/v1/report"
	}
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_DefaultConfig(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/api/v1/report", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := corsRequest(r, http.MethodGet, "http://bench.local")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":   "*",
		"Access-Control-Max-Age":        "86400",
		"Access-Control-Expose-Headers": "X-Request-ID, HX-Trigger",
		"Vary":                          "Origin",
	}
	for h, v := range want {
		if got := w.Header().Get(h); got != v {
			t.Errorf("%s = %q, want %q", h, got, v)
		}
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" || w.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("methods and headers must be advertised")
	}
}

func TestCORSWithConfig(t *testing.T) {
	allowlist := CORSConfig{
		AllowOrigins: []string{"https://bench.example.com"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       90 * time.Minute,
	}
	credentialed := DefaultCORSConfig()
	credentialed.AllowCredentials = true
	noExpose := allowlist
	noExpose.ExposeHeaders = nil

	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		wantCode   int
		wantOrigin string
		wantMaxAge string
		wantCreds  bool
		wantNoCORS bool
		wantNoVary bool
	}{
		{name: "allowlisted origin", cfg: allowlist, method: http.MethodGet, origin: "https://bench.example.com", wantCode: http.StatusOK, wantOrigin: "https://bench.example.com", wantMaxAge: "5400"},
		{name: "foreign origin", cfg: allowlist, method: http.MethodGet, origin: "https://evil.example.com", wantCode: http.StatusOK, wantNoCORS: true},
		{name: "empty allowlist", cfg: CORSConfig{}, method: http.MethodGet, origin: "https://bench.example.com", wantCode: http.StatusOK, wantNoCORS: true},
		{name: "no origin header", cfg: allowlist, method: http.MethodGet, wantCode: http.StatusOK, wantNoCORS: true, wantNoVary: true},
		{name: "preflight", cfg: allowlist, method: http.MethodOptions, origin: "https://bench.example.com", wantCode: http.StatusNoContent, wantOrigin: "https://bench.example.com", wantMaxAge: "5400"},
		{name: "credentials echo origin", cfg: credentialed, method: http.MethodGet, origin: "http://lab:3000", wantCode: http.StatusOK, wantOrigin: "http://lab:3000", wantMaxAge: "86400", wantCreds: true},
		{name: "no expose headers", cfg: noExpose, method: http.MethodPost, origin: "https://bench.example.com", wantCode: http.StatusOK, wantOrigin: "https://bench.example.com", wantMaxAge: "5400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := corsRequest(corsRouter(tt.cfg), tt.method, tt.origin)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantNoVary != (w.Header().Get("Vary") == "") {
				t.Errorf("Vary = %q", w.Header().Get("Vary"))
			}
			if tt.wantNoCORS {
				if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
					t.Errorf("Allow-Origin = %q, want none", got)
				}
				return
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Max-Age"); got != tt.wantMaxAge {
				t.Errorf("Max-Age = %q, want %q", got, tt.wantMaxAge)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.wantCreds)
			}
			if len(tt.cfg.ExposeHeaders) == 0 && w.Header().Get("Access-Control-Expose-Headers") != "" {
				t.Error("Expose-Headers must be omitted when none are configured")
			}
		})
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	release := CORSConfig{AllowOrigins: []string{"https://ops.example.com"}}
	tests := []struct {
		name   string
		cfg    CORSConfig
		host   string
		origin string
		want   bool
	}{
		{"no origin", release, "bench:8080", "", true},
		{"same origin", release, "bench:8080", "http://bench:8080", true},
		{"same origin case", release, "bench:8080", "http://BENCH:8080", true},
		{"allowlisted", release, "bench:8080", "https://ops.example.com", true},
		{"foreign", release, "bench:8080", "https://evil.example.com", false},
		{"other port", release, "bench:8080", "http://bench:9090", false},
		{"wildcard", DefaultCORSConfig(), "bench:8080", "https://anything.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/slaves/events", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := WebSocketOriginCheck(tt.cfg)(req); got != tt.want {
				t.Errorf("check(%q from %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}
