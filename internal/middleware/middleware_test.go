package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T, expiry time.Duration) (*service.AuthService, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{JWTSecret: "middleware-test-secret", JWTExpiry: expiry, BcryptCost: 4}
	return service.NewAuthService(cfg, nil, rdb, zerolog.Nop()), rdb
}

func token(t *testing.T, auth *service.AuthService, id int, role model.Role) string {
	t.Helper()
	tok, _, err := auth.GenerateToken(&model.User{ID: id, Role: role})
	require.NoError(t, err)
	return tok
}

func protected(auth *service.AuthService, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequireAuth(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetClaims(c).UserID})
	})
	r.GET("/me", handlers...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	auth, _ := newAuth(t, time.Hour)
	r := protected(auth)

	t.Run("missing token", func(t *testing.T) {
		w := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth, 42, model.RoleStudent))
		w := do(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"userId":42`)
	})

	t.Run("query fallback", func(t *testing.T) {
		w := do(r, httptest.NewRequest(http.MethodGet, "/me?token="+token(t, auth, 5, model.RoleAdmin), nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := do(r, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_INVALID")
	})
}

func TestRequireAuthExpiredToken(t *testing.T) {
	auth, _ := newAuth(t, -time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, 1, model.RoleStudent))

	w := do(protected(auth), req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestRequireAuthRevokedToken(t *testing.T) {
	auth, _ := newAuth(t, time.Hour)
	tok := token(t, auth, 1, model.RoleStudent)
	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	require.NoError(t, auth.Revoke(t.Context(), claims))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := do(protected(auth), req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")
}

func TestRequireRole(t *testing.T) {
	auth, _ := newAuth(t, time.Hour)
	r := protected(auth, RequireRole(model.RoleAdmin))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, 1, model.RoleStudent))
	w := do(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ADMIN_ACCESS_ONLY")

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, 2, model.RoleAdmin))
	assert.Equal(t, http.StatusOK, do(r, req).Code)
}

func TestRateLimiterBucket(t *testing.T) {
	rl := &RateLimiter{name: "test", visitors: map[string]*visitor{}, rate: 2, interval: time.Minute}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, rl.allow("1.1.1.1", now))
	assert.True(t, rl.allow("1.1.1.1", now))
	assert.False(t, rl.allow("1.1.1.1", now))
	assert.True(t, rl.allow("2.2.2.2", now), "buckets are per IP")
	assert.True(t, rl.allow("1.1.1.1", now.Add(time.Minute)), "bucket refills after the interval")
}

func TestAutosaveLimiter(t *testing.T) {
	auth, rdb := newAuth(t, time.Hour)
	al := NewAutosaveLimiter(rdb, 2)
	now := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)
	al.now = func() time.Time { return now }

	r := gin.New()
	r.PATCH("/attempts/x", RequireAuth(auth), al.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	send := func(user int) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/attempts/x", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth, user, model.RoleStudent))
		return do(r, req)
	}

	assert.Equal(t, http.StatusOK, send(7).Code)
	assert.Equal(t, http.StatusOK, send(7).Code)
	w := send(7)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "50", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send(8).Code, "limit is per user")

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, send(7).Code, "next window starts fresh")
}

func brotliEngine(body string, contentType string) *gin.Engine {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/data", func(c *gin.Context) {
		c.Data(http.StatusOK, contentType, []byte(body))
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, body)
	})
	return r
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat(`{"question":"What is 2+2?"}`, 100)
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")

	w := do(brotliEngine(body, "application/json"), req)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))

	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestBrotliPassesThrough(t *testing.T) {
	large := strings.Repeat("x", 4096)

	cases := []struct {
		name        string
		path        string
		body        string
		contentType string
	}{
		{"small body", "/data", "tiny", "application/json"},
		{"metrics", "/metrics", large, "text/plain"},
		{"xlsx", "/data", large, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Accept-Encoding", "br")
			w := do(brotliEngine(tc.body, tc.contentType), req)
			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCacheControlOnlyForReads(t *testing.T) {
	r := gin.New()
	r.Use(CacheControl(30))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "public, max-age=30, stale-while-revalidate=30", w.Header().Get("Cache-Control"))
	assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))

	w = do(r, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
