package poller

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds surfaced to callers
const (
	KindValidation      = "validation"
	KindConfiguration   = "configuration"
	KindVendor          = "vendor"
	KindVendorOperation = "vendor_operation"
	KindProtocol        = "protocol"
	KindTimeout         = "timeout"
	KindCanceled        = "canceled"
	KindInternal        = "internal"
)

var (
	// ErrEmptyPrompt is returned when a request carries no prompt text
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrMissingCredentials is returned when the vendor api key or endpoint is not configured
	ErrMissingCredentials = errors.New("vendor credentials are not configured")

	// ErrTerminalState is returned when a job that already finished is driven again
	ErrTerminalState = errors.New("job is in a terminal state")
)

// ValidationError reports malformed caller input
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports a deployment misconfiguration
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError for a missing key
func NewConfigurationError(key string) error {
	return &ConfigurationError{Key: key, Err: ErrMissingCredentials}
}

// VendorError is a non-success HTTP response from a single vendor call
type VendorError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransportError is a vendor call that got no HTTP response while the
// caller's context was still live, such as a refused connection or a
// per-call client timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vendor %s unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call gave up waiting for the vendor
func (e *TransportError) Timeout() bool {
	var netErr interface{ Timeout() bool }
	return errors.Is(e.Err, context.DeadlineExceeded) || (errors.As(e.Err, &netErr) && netErr.Timeout())
}

// transportFailure separates calls the caller abandoned from calls the vendor
// never answered. Errors that already carry a kind are returned unchanged.
func transportFailure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || ErrorKind(err) != KindCanceled {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// VendorOperationError reports that the vendor finished the operation with an error
type VendorOperationError struct {
	OperationID string
	Detail      OperationError
}

func (e *VendorOperationError) Error() string {
	return fmt.Sprintf("vendor operation %s failed: %s", e.OperationID, e.Detail.Message)
}

// ProtocolError reports a vendor response that violates the expected contract
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "vendor protocol violation: " + e.Reason
}

// TimeoutError reports that polling ran out of attempts before the operation finished
type TimeoutError struct {
	OperationID string
	Attempts    int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s did not finish after %d attempts", e.OperationID, e.Attempts)
}

// ErrorKind classifies err into one of the Kind constants
func ErrorKind(err error) string {
	var (
		validationErr *ValidationError
		configErr     *ConfigurationError
		vendorErr     *VendorError
		operationErr  *VendorOperationError
		protocolErr   *ProtocolError
		timeoutErr    *TimeoutError
		transportErr  *TransportError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &operationErr):
		return KindVendorOperation
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &vendorErr), errors.As(err, &transportErr):
		return KindVendor
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
