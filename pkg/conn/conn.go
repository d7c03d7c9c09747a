package conn

import (
	"errors"
)

// ErrClosed is returned when using a closed connection.
var ErrClosed = errors.New("connection closed")

// RetryableError indicates a error is retryable, such as a peer being
// temporarily unreachable.
type RetryableError struct {
	err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{err}
}

func (e *RetryableError) Unwrap() error {
	return e.err
}

func (e *RetryableError) Error() string {
	return e.err.Error()
}

// IsRetryable returns true if err contains a RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// Conn represents a bi-directional message-oriented connection between
// two peers.
//
// ReadMessage must only be called from a single goroutine, though
// WriteMessage and Close are safe to call concurrently.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	// Addr returns the remote address of the peer.
	Addr() string
	Close() error
}
