package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"reddit-pipeline/metrics"
)

func TestPrometheusMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware("test-service"))
	r.GET("/subreddits/:subreddit/posts", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	counter := metrics.HttpRequestsTotal.WithLabelValues("GET", "/subreddits/:subreddit/posts", "200", "test-service")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"golang", "rust"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/subreddits/"+name+"/posts", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestPrometheusMiddlewareUnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware("test-service"))

	counter := metrics.HttpRequestsTotal.WithLabelValues("GET", "unmatched", "404", "test-service")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
