package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/audit"
	"github.com/chatline/chatline-api/internal/models"
	"github.com/chatline/chatline-api/internal/service"
	"github.com/chatline/chatline-api/internal/token"
	"github.com/chatline/chatline-api/pkg/config"
)

func newTestCodec() *token.Codec {
	return token.NewCodec(token.Config{
		Secret:        "test-secret",
		Issuer:        "chatline-test",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
	})
}

func newProtectedRouter(t *testing.T, extra ...gin.HandlerFunc) (*gin.Engine, *token.Codec) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	codec := newTestCodec()
	authSvc := service.NewAuthService(nil, nil, codec, noopRecorder{}, nil, nil, zap.NewNop(), service.AuthConfig{})

	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(authSvc)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	r.GET("/protected", handlers...)
	return r, codec
}

type noopRecorder struct{}

func (noopRecorder) Record(audit.Entry) {}

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{Enabled: true, Window: time.Minute, MaxAttempts: 2}
}

func TestJWTAllowsValidToken(t *testing.T) {
	r, codec := newProtectedRouter(t)
	access, _, err := codec.SignAccess("u1", models.RoleUser)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r, _ := newProtectedRouter(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTRejectsRefreshTokenAsBearer(t *testing.T) {
	r, codec := newProtectedRouter(t)
	refresh, _, _, err := codec.SignRefresh("u1", models.RoleUser)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminBlocksUserRole(t *testing.T) {
	r, codec := newProtectedRouter(t, RequireAdmin())

	userToken, _, err := codec.SignAccess("u1", models.RoleUser)
	require.NoError(t, err)
	adminToken, _, err := codec.SignAccess("u2", models.RoleAdmin)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/limited", RateLimit(nil, testRateLimitConfig(), zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
