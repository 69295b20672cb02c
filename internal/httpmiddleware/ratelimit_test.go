package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(capacity, perMinute int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewSimpleTokenBucket(capacity, perMinute).GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:40000"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestBucketExhaustsAndRejects(t *testing.T) {
	r := limitedRouter(3, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/ping"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping"))
}

func TestHealthzIsNeverLimited(t *testing.T) {
	r := limitedRouter(1, 1)

	assert.Equal(t, http.StatusOK, get(r, "/ping"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/healthz"))
	}
}

func TestZeroRateDisablesLimiting(t *testing.T) {
	r := limitedRouter(0, 0)

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/ping"))
	}
}
