package admin

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/spread/pkg/log"
)

type fakeStatus struct {
}

func (s *fakeStatus) Register(group *gin.RouterGroup) {
	group.GET("/foo", func(c *gin.Context) {
		c.String(http.StatusOK, "bar")
	})
	group.GET("/panic", func(_ *gin.Context) {
		panic("test")
	})
}

func newTestServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(ln, prometheus.NewRegistry(), log.NewNopLogger())
	server.AddStatus("/fake", &fakeStatus{})
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
	})

	return "http://" + ln.Addr().String()
}

func TestServer(t *testing.T) {
	url := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(url + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(url + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "spread_admin_requests_total")
	})

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(url + "/status/fake/foo")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "bar", string(b))
	})

	t.Run("panic", func(t *testing.T) {
		resp, err := http.Get(url + "/status/fake/panic")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}
