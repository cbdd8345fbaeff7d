package amqp

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrConnectionClosed   = errors.New("amqp: connection is closed")
	ErrConnectionNotReady = errors.New("amqp: connection not ready")
	ErrConnectionTimeout  = errors.New("amqp: connection timeout")
	ErrMaxRetriesExceeded = errors.New("amqp: maximum reconnection attempts exceeded")

	ErrChannelPoolClosed    = errors.New("amqp: channel pool is closed")
	ErrChannelPoolExhausted = errors.New("amqp: channel pool exhausted")

	ErrPublishNacked       = errors.New("amqp: publish nacked by broker")
	ErrPublishReturned     = errors.New("amqp: publish returned as unroutable")
	ErrPublishNotConfirmed = errors.New("amqp: publish not confirmed")

	ErrInvalidConfiguration = errors.New("amqp: invalid configuration")
)

// ConnectionError represents a failed connect or reconnect
type ConnectionError struct {
	Op        string
	URL       string
	Err       error
	Timestamp time.Time
	Attempts  int
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("amqp connection error: %s %s failed after %d attempts: %v", e.Op, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("amqp connection error: %s %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PublishError represents a failed publish
type PublishError struct {
	RoutingKey string
	Err        error
	Timestamp  time.Time
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("amqp publish error: %s: %v", e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed publish may be repeated. Nacks and
// unroutable messages will fail the same way again.
func (e *PublishError) IsRetryable() bool {
	return !errors.Is(e.Err, ErrPublishReturned) && !errors.Is(e.Err, ErrInvalidConfiguration)
}

// ConsumerError represents a failed subscription
type ConsumerError struct {
	Queue     string
	Op        string
	Err       error
	Timestamp time.Time
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("amqp consumer error: %s on queue %s: %v", e.Op, e.Queue, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// SanitizeURL hides the password of a connection URL
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
