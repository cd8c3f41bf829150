package printful

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by lookups for orders Printful does not know.
var ErrOrderNotFound = errors.New("printful order not found")

// ProviderError means Printful answered but refused the request. Retrying the
// same request will not help.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("printful API error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError means no usable response arrived: DNS, connect, timeout or a
// body we could not read. The request may or may not have reached Printful.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("printful %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
