package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func do(r *gin.Engine, req *http.Request) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := newRouter("s3cret")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, req))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, do(r, req))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, do(r, req))

	// The query parameter only counts on upgrade requests.
	req = httptest.NewRequest(http.MethodGet, "/ping?api_key=s3cret", nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, req))

	req = httptest.NewRequest(http.MethodGet, "/ping?api_key=s3cret", nil)
	req.Header.Set("Upgrade", "websocket")
	assert.Equal(t, http.StatusOK, do(r, req))
}

func TestAPIKeyDisabled(t *testing.T) {
	r := newRouter("")
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/ping", nil)))
}
