package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/conn/websocket"
	"github.com/andydunstall/spread/pkg/log"
	"github.com/andydunstall/spread/pkg/middleware"
)

// Server is the HTTP server peers connect to.
type Server struct {
	ln net.Listener

	router *gin.Engine

	httpServer *http.Server

	websocketUpgrader *gorillaws.Upgrader

	transport *Transport

	logger log.Logger
}

func NewServer(
	ln net.Listener,
	transport *Transport,
	logger log.Logger,
) *Server {
	router := gin.New()
	server := &Server{
		ln:     ln,
		router: router,
		httpServer: &http.Server{
			Addr:     ln.Addr().String(),
			Handler:  router,
			ErrorLog: logger.StdLogger(zap.WarnLevel),
		},
		websocketUpgrader: &gorillaws.Upgrader{},
		transport:         transport,
		logger:            logger.WithSubsystem("peer.server"),
	}

	// Recover from panics.
	server.router.Use(gin.CustomRecoveryWithWriter(nil, server.panicRoute))

	server.router.Use(middleware.NewLogger(server.logger))

	server.registerRoutes()

	return server
}

func (s *Server) Serve() error {
	s.logger.Info("starting http server", zap.String("addr", s.ln.Addr().String()))

	if err := s.httpServer.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and closes the existing peer
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	// Hijacked WebSocket connections aren't tracked by the HTTP server, so
	// close them via the transport.
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("failed to close transport", zap.Error(err))
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	peer := s.router.Group("/peer/v1")
	peer.GET("/ws", s.wsRoute)
}

// wsRoute handles WebSocket connections from peers.
func (s *Server) wsRoute(c *gin.Context) {
	wsConn, err := s.websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade replies to the client so nothing else to do.
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	conn := websocket.NewConn(
		wsConn, websocket.WithReadLimit(s.transport.conf.MaxMessageSize),
	)

	s.logger.Debug(
		"peer connected",
		zap.String("client-ip", c.ClientIP()),
	)

	if err := s.transport.Accept(conn); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		s.logger.Debug(
			"peer connection failed",
			zap.String("client-ip", c.ClientIP()),
			zap.Error(err),
		)
	}
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"handler panic",
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

func init() {
	// Disable Gin debug logs.
	gin.SetMode(gin.ReleaseMode)
}
