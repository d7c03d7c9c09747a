package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andydunstall/spread/pkg/conn"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 4 * 1024 * 1024
)

// retryableStatusCodes contains a set of HTTP status codes that should be
// retried.
var retryableStatusCodes = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

type options struct {
	tlsConfig *tls.Config
	readLimit int64
}

type Option interface {
	apply(*options)
}

type tlsConfigOption struct {
	TLSConfig *tls.Config
}

func (o tlsConfigOption) apply(opts *options) {
	opts.tlsConfig = o.TLSConfig
}

func WithTLSConfig(config *tls.Config) Option {
	return tlsConfigOption{TLSConfig: config}
}

type readLimitOption int64

func (o readLimitOption) apply(opts *options) {
	opts.readLimit = int64(o)
}

// WithReadLimit sets the maximum size of a message read from the peer.
func WithReadLimit(limit int64) Option {
	return readLimitOption(limit)
}

// Conn is a message-oriented connection over a WebSocket. Each message is
// sent as a binary WebSocket message.
type Conn struct {
	wsConn *websocket.Conn

	// writeMu serializes writes, as the WebSocket connection supports only
	// a single concurrent writer.
	writeMu sync.Mutex
}

// NewConn wraps an established WebSocket connection.
func NewConn(wsConn *websocket.Conn, opts ...Option) *Conn {
	options := options{
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o.apply(&options)
	}

	wsConn.SetReadLimit(options.readLimit)
	return &Conn{
		wsConn: wsConn,
	}
}

// Dial opens a WebSocket connection to the given URL.
//
// Connection errors that may succeed on retry return a
// conn.RetryableError.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	options := options{}
	for _, o := range opts {
		o.apply(&options)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	if options.tlsConfig != nil {
		dialer.TLSClientConfig = options.tlsConfig
	}

	wsConn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			if _, ok := retryableStatusCodes[resp.StatusCode]; ok {
				return nil, conn.NewRetryableError(err)
			}
			return nil, fmt.Errorf("%d: %w", resp.StatusCode, err)
		}
		return nil, conn.NewRetryableError(err)
	}
	return NewConn(wsConn, opts...), nil
}

func (c *Conn) ReadMessage() ([]byte, error) {
	mt, message, err := c.wsConn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected websocket message type: %d", mt)
	}
	return message, nil
}

func (c *Conn) WriteMessage(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.wsConn.WriteMessage(websocket.BinaryMessage, b)
}

func (c *Conn) Addr() string {
	return c.wsConn.RemoteAddr().String()
}

func (c *Conn) Close() error {
	return c.wsConn.Close()
}

var _ conn.Conn = &Conn{}
