package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		allowedOrigins []string
		want           bool
	}{
		{
			name:           "exact match",
			origin:         "https://smartsave.app",
			allowedOrigins: []string{"https://smartsave.app"},
			want:           true,
		},
		{
			name:           "wildcard match",
			origin:         "http://localhost:5173",
			allowedOrigins: []string{"http://localhost:*"},
			want:           true,
		},
		{
			name:           "multiple allowed origins - matches second",
			origin:         "https://smartsave.app",
			allowedOrigins: []string{"http://localhost:*", "https://smartsave.app"},
			want:           true,
		},
		{
			name:           "no match",
			origin:         "http://evil.com",
			allowedOrigins: []string{"http://localhost:*"},
			want:           false,
		},
		{
			name:           "empty origin",
			origin:         "",
			allowedOrigins: []string{"*"},
			want:           false,
		},
		{
			name:           "empty allowed list",
			origin:         "https://smartsave.app",
			allowedOrigins: []string{},
			want:           false,
		},
		{
			name:           "subdomain is not an exact match",
			origin:         "https://evil.smartsave.app",
			allowedOrigins: []string{"https://smartsave.app"},
			want:           false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isAllowedOrigin(tt.origin, tt.allowedOrigins)
			if got != tt.want {
				t.Errorf("isAllowedOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantCORS   bool
	}{
		{name: "allowed origin - GET request", origin: "http://localhost:3000", method: http.MethodGet, wantStatus: http.StatusOK, wantCORS: true},
		{name: "allowed origin - OPTIONS request", origin: "http://localhost:3000", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantCORS: true},
		{name: "disallowed origin", origin: "http://evil.com", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "no origin header", method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CORSMiddleware([]string{"http://localhost:*"}))
			router.GET("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "OK")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			corsHeader := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantCORS {
				if corsHeader != tt.origin {
					t.Errorf("Access-Control-Allow-Origin = %s, want %s", corsHeader, tt.origin)
				}
				if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Errorf("Access-Control-Allow-Credentials not set to true")
				}
			} else if corsHeader != "" {
				t.Errorf("Access-Control-Allow-Origin should not be set for disallowed origin, got %s", corsHeader)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	newRouter := func(seen *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestIDMiddleware())
		router.GET("/test", func(c *gin.Context) {
			*seen = c.GetString(requestIDKey)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("generates an id when none is sent", func(t *testing.T) {
		var seen string
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		got := w.Header().Get(requestIDHeader)
		if len(got) != 36 {
			t.Errorf("X-Request-ID = %q, want a uuid", got)
		}
		if seen != got {
			t.Errorf("context request id = %q, want %q", seen, got)
		}
	})

	t.Run("propagates caller id", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if got := w.Header().Get(requestIDHeader); got != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", got)
		}
		if seen != "abc-123" {
			t.Errorf("context request id = %q, want abc-123", seen)
		}
	})
}

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	entries := logs.FilterMessage("request served").AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Level != zap.InfoLevel {
		t.Errorf("level for 200 = %v, want info", entries[0].Level)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("level for 400 = %v, want warn", entries[1].Level)
	}

	fields := entries[0].ContextMap()
	if fields["path"] != "/ok" {
		t.Errorf("path = %v, want /ok", fields["path"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v, want 200", fields["status"])
	}
	if fields["request_id"] == "" {
		t.Error("request_id not logged")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	router := gin.New()
	router.Use(RecoveryMiddleware(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(perMinute int) *gin.Engine {
		router := gin.New()
		router.Use(RateLimitMiddleware(perMinute))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}
	request := func(router *gin.Engine, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("allows burst then rejects", func(t *testing.T) {
		router := newRouter(3)

		for i := 0; i < 3; i++ {
			if w := request(router, "10.0.0.1"); w.Code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}

		w := request(router, "10.0.0.1")
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("Retry-After not set")
		}
	})

	t.Run("limits each ip separately", func(t *testing.T) {
		router := newRouter(1)

		if w := request(router, "10.0.0.1"); w.Code != http.StatusOK {
			t.Errorf("first ip: Status = %d, want %d", w.Code, http.StatusOK)
		}
		if w := request(router, "10.0.0.2"); w.Code != http.StatusOK {
			t.Errorf("second ip: Status = %d, want %d", w.Code, http.StatusOK)
		}
		if w := request(router, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
			t.Errorf("first ip again: Status = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
	})

	t.Run("zero disables limiting", func(t *testing.T) {
		router := newRouter(0)

		for i := 0; i < 50; i++ {
			if w := request(router, "10.0.0.1"); w.Code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}
	})
}

func TestIPRateLimiter_PrunesIdleVisitors(t *testing.T) {
	limiter := newIPRateLimiter(10)
	start := time.Now()

	limiter.allow("10.0.0.1", start)
	limiter.allow("10.0.0.2", start)
	if len(limiter.visitors) != 2 {
		t.Fatalf("visitors = %d, want 2", len(limiter.visitors))
	}

	limiter.allow("10.0.0.3", start.Add(5*time.Minute))
	if len(limiter.visitors) != 1 {
		t.Errorf("visitors = %d, want 1 after pruning", len(limiter.visitors))
	}
}
