// Package progress subscribes to the progress stream of a batch generation job.
//
// A Channel is a finite, non-restartable sequence of Events. It ends after a
// terminal event, a connection error, or Close, whichever comes first.
package progress

import (
	"context"
	"errors"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Event struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Status   Status  `json:"status"`
}

func (e Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateCompleted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Channel interface {
	// Events is closed when the sequence ends.
	Events() <-chan Event
	State() State
	// Err is the connection error that ended the sequence, if any.
	Err() error
	// Close is idempotent. No event is delivered once it returns.
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, batchID string) (Channel, error)
}

var ErrStreamEnded = errors.New("progress stream ended before a terminal event")
