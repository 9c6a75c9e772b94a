package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bargain-service/internal/pkg/jwt"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type verifierMock struct{ mock.Mock }

func (m *verifierMock) VerifyAccessToken(token string) (*jwt.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*jwt.Claims)
	return claims, args.Error(1)
}

type revocationsMock struct{ mock.Mock }

func (m *revocationsMock) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

type limiterMock struct{ mock.Mock }

func (m *limiterMock) CheckAPIRateLimit(ctx context.Context, userID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, endpoint, maxRequests, window)
	return args.Bool(0), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func merchantClaims() *jwt.Claims {
	return &jwt.Claims{
		UserID:           42,
		ShopDomain:       "demo.myshopify.com",
		Roles:            []string{"merchant"},
		Purpose:          jwt.PurposeAccess,
		RegisteredClaims: gojwt.RegisteredClaims{ID: "01HJTI"},
	}
}

func authRouter(verifier TokenVerifier, revocations RevocationChecker) *gin.Engine {
	r := gin.New()
	r.Use(NewAuthMiddleware(verifier, revocations, zap.NewNop()).Auth())
	r.GET("/me", func(c *gin.Context) {
		userID, _ := CurrentUser(c)
		jti, _ := GetJTI(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "jti": jti, "roles": GetRoles(c)})
	})
	return r
}

func get(r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		w := get(authRouter(new(verifierMock), nil), "/me", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing authorization token")
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		w := get(authRouter(new(verifierMock), nil), "/me", map[string]string{"Authorization": "Basic abc"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		verifier := new(verifierMock)
		verifier.On("VerifyAccessToken", "bad").Return(nil, errors.New("signature invalid"))

		w := get(authRouter(verifier, nil), "/me", map[string]string{"Authorization": "Bearer bad"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})

	t.Run("valid token without revocation store", func(t *testing.T) {
		verifier := new(verifierMock)
		verifier.On("VerifyAccessToken", "good").Return(merchantClaims(), nil)

		w := get(authRouter(verifier, nil), "/me", map[string]string{"Authorization": "Bearer good"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":42,"jti":"01HJTI","roles":["merchant"]}`, w.Body.String())
	})

	t.Run("revoked token", func(t *testing.T) {
		verifier := new(verifierMock)
		verifier.On("VerifyAccessToken", "good").Return(merchantClaims(), nil)
		revocations := new(revocationsMock)
		revocations.On("IsTokenBlacklisted", mock.Anything, "01HJTI").Return(true, nil)

		w := get(authRouter(verifier, revocations), "/me", map[string]string{"Authorization": "Bearer good"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "revoked")
	})

	t.Run("revocation store down rejects", func(t *testing.T) {
		verifier := new(verifierMock)
		verifier.On("VerifyAccessToken", "good").Return(merchantClaims(), nil)
		revocations := new(revocationsMock)
		revocations.On("IsTokenBlacklisted", mock.Anything, "01HJTI").Return(false, errors.New("connection refused"))

		w := get(authRouter(verifier, revocations), "/me", map[string]string{"Authorization": "Bearer good"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func limitedRouter(limiter APIRateLimiter, limit int) *gin.Engine {
	r := gin.New()
	r.POST("/enable", func(c *gin.Context) {
		SetUser(c, 42)
		c.Next()
	}, RateLimit(limiter, "bargaining.enable", limit, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func post(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestRateLimit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		limiter := new(limiterMock)
		limiter.On("CheckAPIRateLimit", mock.Anything, int64(42), "bargaining.enable", int64(5), time.Minute).Return(true, nil)

		assert.Equal(t, http.StatusNoContent, post(limitedRouter(limiter, 5), "/enable").Code)
		limiter.AssertExpectations(t)
	})

	t.Run("over limit", func(t *testing.T) {
		limiter := new(limiterMock)
		limiter.On("CheckAPIRateLimit", mock.Anything, int64(42), "bargaining.enable", int64(5), time.Minute).Return(false, nil)

		w := post(limitedRouter(limiter, 5), "/enable")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "rate_limited")
	})

	t.Run("limiter down lets request through", func(t *testing.T) {
		limiter := new(limiterMock)
		limiter.On("CheckAPIRateLimit", mock.Anything, int64(42), "bargaining.enable", int64(5), time.Minute).Return(false, errors.New("timeout"))

		assert.Equal(t, http.StatusNoContent, post(limitedRouter(limiter, 5), "/enable").Code)
	})

	t.Run("no limiter", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, post(limitedRouter(nil, 5), "/enable").Code)
	})

	t.Run("disabled limit", func(t *testing.T) {
		limiter := new(limiterMock)
		assert.Equal(t, http.StatusNoContent, post(limitedRouter(limiter, 0), "/enable").Code)
		limiter.AssertNotCalled(t, "CheckAPIRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := get(r, "/", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = get(r, "/", map[string]string{RequestIDHeader: "bad id\nwith newline"})
	assert.NotEqual(t, "bad id\nwith newline", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := get(r, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://admin.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/", map[string]string{"Origin": "https://admin.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.EqualFold(RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers")))

	w = get(r, "/", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_Wildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"*"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/", map[string]string{"Origin": "https://anywhere.example.com"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
