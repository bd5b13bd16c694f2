package operator_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fuelledger/operator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func router(cfg operator.Config) *gin.Engine {
	r := gin.New()
	r.Use(operator.Middleware(cfg))
	r.GET("/whoami", operator.Require(), func(c *gin.Context) {
		id, _ := operator.FromContext(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return r
}

func get(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	cfg := operator.Config{Secret: []byte("test-secret"), Issuer: "fuel-ops"}

	t.Run("valid token", func(t *testing.T) {
		token, err := operator.Issue(cfg, "op-42", time.Hour)
		require.NoError(t, err)

		w := get(router(cfg), map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "op-42", w.Body.String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := operator.Issue(operator.Config{Secret: []byte("other"), Issuer: "fuel-ops"}, "op-42", time.Hour)
		require.NoError(t, err)

		w := get(router(cfg), map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := operator.Issue(cfg, "op-42", -time.Minute)
		require.NoError(t, err)

		w := get(router(cfg), map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := get(router(cfg), map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("header ignored unless trusted", func(t *testing.T) {
		w := get(router(cfg), map[string]string{operator.HeaderID: "op-7"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("trusted header", func(t *testing.T) {
		trusted := cfg
		trusted.TrustHeader = true

		w := get(router(trusted), map[string]string{operator.HeaderID: "op-7"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "op-7", w.Body.String())
	})
}
