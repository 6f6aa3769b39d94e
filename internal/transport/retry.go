package transport

import (
	"courtfetch/internal/components/retry"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrStatus is returned by Check for responses that are not 2xx or 3xx.
var ErrStatus = errors.New("unexpected status")

// DefaultRetryPolicy is used for plain portal requests (entry pages, query
// submissions, document downloads).
var DefaultRetryPolicy = retry.Policy{
	MaxAttempts: 3,
	Delay:       2 * time.Second,
	Step:        2 * time.Second,
}

// Check turns the outcome of a request into an error for retry.Policy.Run.
// Network failures, 5xx and 429 are retried, any other 4xx is permanent.
func Check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	return CheckStatus(res.StatusCode(), res.Status())
}

func CheckStatus(code int, status string) error {
	if code < 400 {
		return nil
	}
	if status == "" {
		status = http.StatusText(code)
	}
	err := fmt.Errorf("%w: %s", ErrStatus, status)
	if code >= 500 || code == http.StatusTooManyRequests {
		return err
	}
	return retry.Permanent(err)
}
