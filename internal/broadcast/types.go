package broadcast

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("broadcast: connection closed")

// Conn is one client connection. Send must be safe for concurrent use and
// should give up when ctx is done.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

// Failure pairs a connection with the error its send returned.
type Failure struct {
	Conn Conn
	Err  error
}

// Result is the outcome of one SendAll.
type Result struct {
	Succeeded []Conn
	Failed    []Failure
}

// Delivered is the number of successful sends.
func (r Result) Delivered() int { return len(r.Succeeded) }
