package huddle

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAccess     = errors.New("media access failed")
	ErrNegotiation     = errors.New("negotiation failed")
	ErrCandidate       = errors.New("ice candidate rejected")
	ErrTransportClosed = errors.New("signaling transport closed")
	ErrInvalidMessage  = errors.New("invalid signaling message")
	ErrSessionClosed   = errors.New("huddle session closed")
)

// HuddleError records the operation and peer an error happened on.
type HuddleError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *HuddleError) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + e.Peer
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *HuddleError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *HuddleError {
	return &HuddleError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *HuddleError {
	return &HuddleError{Op: op, Peer: peer, Err: err}
}

// classify tags cause with a sentinel so callers can match either.
func classify(kind, cause error) error {
	if cause == nil || errors.Is(cause, kind) {
		return cause
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
