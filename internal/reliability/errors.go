package reliability

import (
	"errors"
	"fmt"
	"time"

	"github.com/glimte/relay-go/contracts"
)

var (
	ErrUnknownState       = errors.New("circuit breaker: unknown state")
	ErrNonRetryable       = errors.New("retry: error is not retryable")
	ErrMaxRetriesExceeded = errors.New("retry: maximum attempts exceeded")
)

// CircuitBreakerError represents a rejected call with the breaker state at the time
type CircuitBreakerError struct {
	Name             string
	State            State
	Op               string
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Second)
		return fmt.Sprintf("circuit breaker %s open: %s blocked (failures=%d/%d, retry in %v)",
			e.Name, e.Op, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("circuit breaker %s half-open: %s limited", e.Name, e.Op)
	default:
		return fmt.Sprintf("circuit breaker %s error: %s in state %v", e.Name, e.Op, e.State)
	}
}

// FaultCode makes a rejected call surface as an unavailable fault
func (e *CircuitBreakerError) FaultCode() contracts.FaultCode {
	return contracts.FaultUnavailable
}

// RetryError is returned once a retry policy gives up
type RetryError struct {
	Op          string
	Attempts    int
	MaxAttempts int
	LastError   error
	Duration    time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry failed: %s after %d/%d attempts over %v: %v",
		e.Op, e.Attempts, e.MaxAttempts, e.Duration.Round(time.Millisecond), e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// RetryableError wraps an error with an explicit retry decision
type RetryableError struct {
	Err       error
	Retryable bool
}

// Error implements error interface
func (r RetryableError) Error() string {
	return r.Err.Error()
}

// IsRetryable indicates if the error is retryable
func (r RetryableError) IsRetryable() bool {
	return r.Retryable
}

// Unwrap returns the wrapped error
func (r RetryableError) Unwrap() error {
	return r.Err
}

// IsRetryableError checks if an error should be retried. An explicit
// IsRetryable decision wins; faults are retried unless they are client or
// server faults raised by application code.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	switch {
	case errors.Is(err, ErrNonRetryable), errors.Is(err, ErrMaxRetriesExceeded):
		return false
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return cbErr.State != StateOpen || time.Now().After(cbErr.NextRetry)
	}

	var fault *contracts.Fault
	if errors.As(err, &fault) {
		switch fault.Code {
		case contracts.FaultTransport, contracts.FaultUnavailable, contracts.FaultTimeout:
			return true
		default:
			return false
		}
	}

	return true
}

// IsBreakerFailure reports whether an error should count against a circuit.
// Client faults and named application faults are the caller's problem, not
// the target's.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var fault *contracts.Fault
	if errors.As(err, &fault) {
		return fault.Code != contracts.FaultClient && fault.Name == ""
	}
	return true
}
