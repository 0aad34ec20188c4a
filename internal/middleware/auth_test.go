package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID: 7,
		RoleID: 10,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JWTKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// TestAuthMiddleware_ExpiryLeeway verifies tokens expired inside the leeway
// window still pass while those beyond it are rejected.
func TestAuthMiddleware_ExpiryLeeway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/tasks", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name string
		ttl  time.Duration
		want int
	}{
		{"fresh token", time.Minute, http.StatusNoContent},
		{"expired inside leeway", -time.Minute, http.StatusNoContent},
		{"expired past leeway", -5 * time.Minute, http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+signTestToken(t, c.ttl))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != c.want {
			t.Errorf("%s: status = %d, want %d", c.name, w.Code, c.want)
		}
	}
}

// TestAuthMiddleware_QueryParamToken verifies the websocket fallback of
// carrying the access token as a query parameter.
func TestAuthMiddleware_QueryParamToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/tasks/sync", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/tasks/sync?access_token="+signTestToken(t, time.Minute), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
