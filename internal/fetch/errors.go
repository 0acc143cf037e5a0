package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrTimeout classifies a fetch that ran out of time.
	ErrTimeout = errors.New("request timed out")

	// ErrStatus classifies a fetch answered with a non-2xx status.
	ErrStatus = errors.New("unexpected HTTP status")
)

// FetchError reports a failed fetch of one URL.
// It is returned for network failures, timeouts and non-2xx responses.
type FetchError struct {
	URL string

	// StatusCode is set when the server answered with a non-2xx status.
	StatusCode int

	Err error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.StatusCode != 0 {
		errs = append(errs, ErrStatus)
	}
	if isTimeout(e.Err) {
		errs = append(errs, ErrTimeout)
	}
	return errs
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryable reports whether another attempt might succeed:
// timeouts, network failures, 429 and 5xx responses are retryable.
// Cancellation of the caller's context is not.
func IsRetryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if fe.StatusCode != 0 {
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= 500
	}
	return !errors.Is(fe.Err, context.Canceled)
}
