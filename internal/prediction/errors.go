package prediction

import (
	"errors"
	"fmt"
)

// Failure classes of the prediction service. Match them with errors.Is on
// the *ServiceError returned by Client.
var (
	// ErrRejected means the service refused the payload (HTTP 400).
	ErrRejected = errors.New("prediction service rejected the request")
	// ErrUnavailable covers transport errors and 5xx responses.
	ErrUnavailable = errors.New("prediction service unavailable")
	// ErrCircuitOpen means the call was not attempted.
	ErrCircuitOpen = errors.New("prediction service circuit open")
	// ErrMalformedResponse means a 200 response could not be decoded.
	ErrMalformedResponse = errors.New("malformed prediction service response")
)

// ServiceError describes a failed call to the prediction service.
type ServiceError struct {
	Op         string
	StatusCode int
	// Message is the service's own error text when it sent one.
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func isRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
