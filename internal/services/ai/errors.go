package ai

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when the provider sends nothing within the idle timeout
var ErrTimeout = errors.New("completion stream timed out")

// UpstreamError is a non-success reply from the provider
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// NetworkError wraps connection and read failures
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("provider network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
