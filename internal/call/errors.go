package call

import (
	"errors"
	"fmt"
)

var (
	ErrTransientNegotiation = errors.New("negotiation attempt failed")
	ErrCandidateApply       = errors.New("ice candidate rejected")
	ErrLinkFailure          = errors.New("peer link failed")
	ErrLinksExhausted       = errors.New("peer link recreation attempts exhausted")
	ErrTransportFailure     = errors.New("relay channel lost")
	ErrMediaUnavailable     = errors.New("local media unavailable")
	ErrRelayRejected        = errors.New("relay reported an error")
)

type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
