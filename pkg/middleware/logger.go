package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/log"
)

type loggedRequest struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Duration string `json:"duration"`
	ClientIP string `json:"client_ip"`
	RespSize int    `json:"resp_size"`
}

// NewLogger creates logging middleware that logs every request.
//
// Requests that fail with a server error are logged at warn level, and all
// other requests at debug level.
func NewLogger(logger log.Logger) gin.HandlerFunc {
	logger = logger.WithSubsystem(logger.Subsystem() + ".route")
	return func(c *gin.Context) {
		s := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		c.Next()

		req := &loggedRequest{
			Method:   c.Request.Method,
			Path:     path,
			Status:   c.Writer.Status(),
			Duration: time.Since(s).String(),
			ClientIP: c.ClientIP(),
			RespSize: c.Writer.Size(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", zap.Any("request", req))
		} else {
			logger.Debug("request", zap.Any("request", req))
		}
	}
}
