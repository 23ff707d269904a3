package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrStreamTimeout is returned when no fragment arrives within the idle timeout.
	ErrStreamTimeout = errors.New("stream idle timeout")
	// ErrStreamCancelled marks a stream closed on request.
	ErrStreamCancelled = errors.New("stream cancelled")
)

// User-visible error texts.
const (
	MessageStreamError     = "There was a streaming error when doing stream, please come back later."
	MessageServiceOverload = "Temporary Service Overload – Your Patience is Appreciated"
	MessageTimeout         = "The assistant is taking too long to answer, please try again."
)

// Markers the agent runtime puts in error bodies when its model backend is
// overloaded.
var serviceOverloadMarkers = []string{
	"Caught Value Error",
	"Caught torch.cuda.CudaError",
	"Caught Unknown Error",
}

// ErrorClass groups stream failures by how the user should react.
type ErrorClass int

const (
	ClassTransport ErrorClass = iota
	ClassTimeout
	ClassService
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassTimeout:
		return "timeout"
	case ClassService:
		return "service"
	default:
		return "unknown"
	}
}

// StreamError is a classified stream failure.
type StreamError struct {
	Class     ErrorClass
	Retryable bool
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Class, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ClassifyError wraps err with its class. A nil error classifies to nil.
func ClassifyError(err error) *StreamError {
	if err == nil {
		return nil
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, ErrStreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &StreamError{Class: ClassTimeout, Retryable: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &StreamError{Class: ClassTimeout, Retryable: true, Err: err}
	}
	if isServiceOverload(err.Error()) {
		return &StreamError{Class: ClassService, Retryable: true, Err: err}
	}
	return &StreamError{Class: ClassTransport, Retryable: false, Err: err}
}

// UserMessage maps err to the text shown inline in the conversation.
func UserMessage(err error) string {
	se := ClassifyError(err)
	if se == nil {
		return ""
	}
	switch se.Class {
	case ClassTimeout:
		return MessageTimeout
	case ClassService:
		return MessageServiceOverload
	default:
		return MessageStreamError
	}
}

func isServiceOverload(text string) bool {
	for _, marker := range serviceOverloadMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
