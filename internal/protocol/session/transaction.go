package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrResponseTimeout = errors.New("session: response timeout")
	ErrTransport       = errors.New("session: transport")
)

// State is the lifecycle position of a transaction.
type State int

const (
	StateInit State = iota
	StateSent
	StateWaiting
	StateMatched
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSent:
		return "sent"
	case StateWaiting:
		return "waiting"
	case StateMatched:
		return "matched"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transaction tracks one request awaiting its response.
type Transaction struct {
	TranNbr    uint8
	MsgType    uint8
	DstNodeID  uint16
	SrcNodeID  uint16
	SentAt     time.Time
	Deadline   time.Time
	Extensions int
	State      State
}

// ResponseTimeoutError reports a request whose deadline passed unanswered.
type ResponseTimeoutError struct {
	TranNbr uint8
	MsgType uint8
	Waited  time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("session: no response to msg_type=%#04x tran=%d after %s", e.MsgType, e.TranNbr, e.Waited)
}

func (e *ResponseTimeoutError) Is(target error) bool {
	return target == ErrResponseTimeout
}
