package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine_back_end/internal/cache"
	"vitrine_back_end/internal/journal"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return "Bearer " + s
}

func whoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "admin": IsAdmin(c), "cart_id": CartID(c)})
}

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(secret), whoAmI)
	r.GET("/admin", AuthRequired(secret), RequireAdmin, whoAmI)

	valid := signToken(t, secret, jwt.MapClaims{"user_id": "u1", "role": "user", "exp": time.Now().Add(time.Hour).Unix()})
	admin := signToken(t, secret, jwt.MapClaims{"user_id": "a1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, secret, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	forged := signToken(t, []byte("other"), jwt.MapClaims{"user_id": "u1"})
	noUser := signToken(t, secret, jwt.MapClaims{"role": "admin"})

	w := do(r, http.MethodGet, "/me", map[string]string{"Authorization": valid})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)

	for name, h := range map[string]string{"absent": "", "expiré": expired, "forgé": forged, "sans user_id": noUser, "format": "Token abc"} {
		w := do(r, http.MethodGet, "/me", map[string]string{"Authorization": h})
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", map[string]string{"Authorization": valid}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", map[string]string{"Authorization": admin}).Code)
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", OptionalAuth(secret), whoAmI)

	w := do(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":""`)

	w = do(r, http.MethodGet, "/me", map[string]string{"Authorization": signToken(t, secret, jwt.MapClaims{"user_id": "u2"})})
	assert.Contains(t, w.Body.String(), `"user_id":"u2"`)

	w = do(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartSession(t *testing.T) {
	r := gin.New()
	r.GET("/cart", CartSession(false), whoAmI)

	w := do(r, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CartCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Contains(t, w.Body.String(), cookies[0].Value)

	w = do(r, http.MethodGet, "/cart", map[string]string{"Cookie": "cart_id=abc"})
	assert.Contains(t, w.Body.String(), `"cart_id":"abc"`)
	assert.Empty(t, w.Result().Cookies())

	w = do(r, http.MethodGet, "/cart", map[string]string{"Cookie": "cart_id=abc", CartHeader: "from-header"})
	assert.Contains(t, w.Body.String(), `"cart_id":"from-header"`)
}

func TestCartRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := gin.New()
	r.POST("/cart/items", CartSession(false), CartRateLimit(cache.New(client), 2, time.Minute), whoAmI)
	h := map[string]string{CartHeader: "C1"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/items", h).Code)
	w := do(r, http.MethodPost, "/cart/items", h)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(r, http.MethodPost, "/cart/items", h)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/items", map[string]string{CartHeader: "C2"}).Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/cart/items", h).Code)
}

type auditCapture struct {
	entries chan journal.AuditEntry
}

func (a *auditCapture) RecordAdminAction(_ context.Context, e journal.AuditEntry) error {
	a.entries <- e
	return nil
}

func TestAuditAdminActionRecordsOutcome(t *testing.T) {
	audit := &auditCapture{entries: make(chan journal.AuditEntry, 2)}
	r := gin.New()
	r.PUT("/orders/:id/status", AuthRequired(secret), AuditAdminAction(audit, journal.ActionOrderStatus, journal.ResourceOrder), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot move order"})
			return
		}
		c.Status(http.StatusOK)
	})
	auth := map[string]string{"Authorization": signToken(t, secret, jwt.MapClaims{"user_id": "admin1", "email": "a@b.c", "role": RoleAdmin})}

	require.Equal(t, http.StatusOK, do(r, http.MethodPut, "/orders/o1/status", auth).Code)
	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/orders/o2/status?fail=1", auth).Code)

	got := map[string]journal.AuditEntry{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-audit.entries:
			got[e.ResourceID] = e
		case <-time.After(2 * time.Second):
			t.Fatal("entrée d'audit manquante")
		}
	}
	assert.True(t, got["o1"].Success)
	assert.Equal(t, "admin1", got["o1"].UserID)
	assert.Equal(t, "a@b.c", got["o1"].UserEmail)
	assert.Equal(t, journal.ActionOrderStatus, got["o1"].Action)
	assert.False(t, got["o2"].Success)
	assert.Equal(t, http.StatusBadRequest, got["o2"].Status)
}
