package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/andydunstall/spread/pkg/log"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	metrics := NewMetrics("test")
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router := gin.New()
	router.Use(NewLogger(log.NewNopLogger()))
	router.Use(metrics.Handler())
	router.GET("/foo", func(c *gin.Context) {
		c.String(http.StatusOK, "bar")
	})

	for i := 0; i != 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/foo", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues("200", "GET"),
	))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues("404", "GET"),
	))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RequestsInFlight))
}
