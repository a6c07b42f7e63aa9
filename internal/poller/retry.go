package poller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RetryPolicy decides whether a failed status check consumes an attempt and
// polling continues, or whether the job fails immediately.
type RetryPolicy string

const (
	// RetryAll keeps polling through every status check failure
	RetryAll RetryPolicy = "all"

	// RetryTransient keeps polling through transport errors, 5xx and 429 only
	RetryTransient RetryPolicy = "transient"
)

// ParseRetryPolicy converts a configuration value into a RetryPolicy.
// An empty value selects RetryAll.
func ParseRetryPolicy(value string) (RetryPolicy, error) {
	switch RetryPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", RetryAll:
		return RetryAll, nil
	case RetryTransient:
		return RetryTransient, nil
	default:
		return "", fmt.Errorf("unknown retry policy %q (must be %q or %q)", value, RetryAll, RetryTransient)
	}
}

// ShouldRetry reports whether a status check error is absorbed into the attempt counter.
// A response that breaks the operation contract is never retried.
func (p RetryPolicy) ShouldRetry(err error) bool {
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		return false
	}
	if p != RetryTransient {
		return true
	}

	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		// transport level failure, the vendor never answered
		return true
	}

	return vendorErr.StatusCode >= http.StatusInternalServerError ||
		vendorErr.StatusCode == http.StatusTooManyRequests ||
		vendorErr.StatusCode == http.StatusRequestTimeout
}
