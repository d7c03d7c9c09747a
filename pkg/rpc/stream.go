package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/spread/pkg/conn"
	"github.com/andydunstall/spread/pkg/log"
)

var (
	// ErrStreamClosed is returned when sending on a closed stream, or when
	// the stream closes while waiting for a response.
	ErrStreamClosed = errors.New("stream closed")

	// ErrNotSupported is returned when the peer has no handler for the
	// requested RPC type.
	ErrNotSupported = errors.New("rpc not supported")

	// ErrHandler is returned when the peers handler failed to process the
	// request.
	ErrHandler = errors.New("handler error")
)

type message struct {
	Header  *header
	Payload []byte
}

// Stream represents a bi-directional RPC stream between two peers. Either peer
// can send an RPC request to the other.
//
// The stream uses the underlying bi-directional connection to send RPC
// requests, and multiplexes multiple concurrent request/response RPCs on the
// same connection.
//
// Incoming RPC requests are handled in their own goroutine to avoid blocking
// the stream.
type Stream struct {
	conn    conn.Conn
	handler *Handler

	nextID *atomic.Uint64

	// responseHandlers contains channels for RPC responses, keyed by
	// request ID.
	responseHandlers map[uint64]chan<- *message
	// mu protects the above fields.
	mu sync.Mutex

	closed *atomic.Bool
	// shutdownCh is closed when the stream is closed.
	shutdownCh chan struct{}
	// err is the error that caused the stream to close.
	err error

	logger log.Logger
}

// NewStream creates a stream over the given connection and starts reading
// messages from the peer.
func NewStream(conn conn.Conn, handler *Handler, logger log.Logger) *Stream {
	s := &Stream{
		conn:             conn,
		handler:          handler,
		nextID:           atomic.NewUint64(0),
		responseHandlers: make(map[uint64]chan<- *message),
		closed:           atomic.NewBool(false),
		shutdownCh:       make(chan struct{}),
		logger:           logger.With(zap.String("addr", conn.Addr())),
	}
	go s.reader()
	return s
}

// RPC sends the given request message to the peer and returns the response or
// an error.
//
// RPC is thread safe.
func (s *Stream) RPC(ctx context.Context, rpcType Type, req []byte) ([]byte, error) {
	h := &header{
		RPCType: rpcType,
		ID:      s.nextID.Inc(),
	}

	ch := make(chan *message, 1)
	s.registerResponseHandler(h.ID, ch)
	defer s.unregisterResponseHandler(h.ID)

	if err := s.write(h, req); err != nil {
		return nil, err
	}

	select {
	case m := <-ch:
		if m.Header.Flags.ErrNotSupported() {
			return nil, fmt.Errorf("%w: %s", ErrNotSupported, rpcType)
		}
		if m.Header.Flags.ErrHandler() {
			return nil, fmt.Errorf("%w: %s", ErrHandler, string(m.Payload))
		}
		return m.Payload, nil
	case <-s.shutdownCh:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify sends a one-way request to the peer. The peer does not respond so
// Notify returns once the message is written.
//
// Notify is thread safe.
func (s *Stream) Notify(rpcType Type, msg []byte) error {
	h := &header{
		RPCType: rpcType,
		ID:      s.nextID.Inc(),
	}
	h.Flags.SetOneWay()
	return s.write(h, msg)
}

// Addr returns the remote address of the peer.
func (s *Stream) Addr() string {
	return s.conn.Addr()
}

// Done returns a channel that is closed when the stream is closed, either by
// calling Close or the connection failing.
func (s *Stream) Done() <-chan struct{} {
	return s.shutdownCh
}

// Err returns the error that caused the stream to close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Stream) Close() error {
	return s.closeStream(ErrStreamClosed)
}

func (s *Stream) reader() {
	defer func() {
		// Ensure in-flight RPCs fail once the reader exits.
		_ = s.closeStream(ErrStreamClosed)
	}()

	for {
		b, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Debug("failed to read from stream", zap.Error(err))
				_ = s.closeStream(fmt.Errorf("read: %w", err))
			}
			return
		}

		var h header
		if err := h.Decode(b); err != nil {
			s.logger.Warn("failed to decode header", zap.Error(err))
			_ = s.closeStream(fmt.Errorf("decode header: %w", err))
			return
		}
		payload := b[headerSize:]

		if h.Flags.Response() {
			s.handleResponse(&h, payload)
		} else {
			go s.handleRequest(&h, payload)
		}
	}
}

func (s *Stream) handleRequest(h *header, payload []byte) {
	respHeader := &header{
		RPCType: h.RPCType,
		ID:      h.ID,
	}
	respHeader.Flags.SetResponse()

	handlerFunc, ok := s.handler.Find(h.RPCType)
	if !ok {
		s.logger.Warn(
			"rpc type not supported",
			zap.String("type", h.RPCType.String()),
		)
		if h.Flags.OneWay() {
			return
		}
		respHeader.Flags.SetErrNotSupported()
		if err := s.write(respHeader, nil); err != nil {
			s.logger.Debug("failed to write response", zap.Error(err))
		}
		return
	}

	// Cancel the handler if the stream closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	resp, err := handlerFunc(ctx, payload)
	if h.Flags.OneWay() {
		if err != nil {
			s.logger.Debug(
				"handler failed",
				zap.String("type", h.RPCType.String()),
				zap.Error(err),
			)
		}
		return
	}

	if err != nil {
		respHeader.Flags.SetErrHandler()
		resp = []byte(err.Error())
	}
	if err := s.write(respHeader, resp); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Stream) handleResponse(h *header, payload []byte) {
	s.mu.Lock()
	ch, ok := s.responseHandlers[h.ID]
	s.mu.Unlock()

	if !ok {
		// The request may have been cancelled.
		s.logger.Debug(
			"response for unknown request",
			zap.Uint64("id", h.ID),
		)
		return
	}

	// The channel is buffered and only receives a single response.
	select {
	case ch <- &message{Header: h, Payload: payload}:
	default:
	}
}

func (s *Stream) write(h *header, payload []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}

	b := make([]byte, 0, headerSize+len(payload))
	b = append(b, h.Encode()...)
	b = append(b, payload...)
	if err := s.conn.WriteMessage(b); err != nil {
		_ = s.closeStream(fmt.Errorf("write: %w", err))
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Stream) registerResponseHandler(id uint64, ch chan<- *message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responseHandlers[id] = ch
}

func (s *Stream) unregisterResponseHandler(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.responseHandlers, id)
}

func (s *Stream) closeStream(err error) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	close(s.shutdownCh)
	return s.conn.Close()
}
