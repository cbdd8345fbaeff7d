package contracts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrChainNotPaused is returned when resuming a chain that is not paused
	ErrChainNotPaused = errors.New("chain: not paused")
	// ErrNoExchange is returned when a message is not bound to an exchange
	ErrNoExchange = errors.New("message: no exchange")
	// ErrUnknownOperation is returned when an operation cannot be resolved
	ErrUnknownOperation = errors.New("operation: unknown")
)

// ConfigurationError is raised eagerly while assembling phases, chains and
// services. It is fatal to startup.
type ConfigurationError struct {
	Component string
	Op        string
	Reason    string
	Err       error
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(component, op, reason string) *ConfigurationError {
	return &ConfigurationError{Component: component, Op: op, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s.%s: %s: %v", e.Component, e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s.%s: %s", e.Component, e.Op, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// FaultCode classifies a fault
type FaultCode string

const (
	// FaultClient means the request was malformed or not permitted
	FaultClient FaultCode = "client"
	// FaultServer means processing failed on the receiving side
	FaultServer FaultCode = "server"
	// FaultTimeout means the exchange did not finish in time
	FaultTimeout FaultCode = "timeout"
	// FaultTransport means the transport failed to move the message
	FaultTransport FaultCode = "transport"
	// FaultUnavailable means the endpoint refused work, for example an open breaker
	FaultUnavailable FaultCode = "unavailable"
)

// NamedFault is implemented by application errors that map to a declared fault
type NamedFault interface {
	error
	FaultName() string
}

// CodedError is implemented by infrastructure errors that know their fault code
type CodedError interface {
	error
	FaultCode() FaultCode
}

// Fault is a typed protocol fault routed through the fault chains
type Fault struct {
	Code   FaultCode
	Reason string
	// Name identifies a declared fault of the operation, if any
	Name   string
	Detail interface{}
	Cause  error
}

// NewFault creates a fault
func NewFault(code FaultCode, reason string) *Fault {
	return &Fault{Code: code, Reason: reason}
}

// WrapFault creates a fault caused by err
func WrapFault(code FaultCode, err error) *Fault {
	return &Fault{Code: code, Reason: err.Error(), Cause: err}
}

func (f *Fault) Error() string {
	if f.Name != "" {
		return fmt.Sprintf("%s fault %s: %s", f.Code, f.Name, f.Reason)
	}
	return fmt.Sprintf("%s fault: %s", f.Code, f.Reason)
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// AsFault normalizes any error into a Fault
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}

	var named NamedFault
	if errors.As(err, &named) {
		return &Fault{Code: FaultServer, Reason: err.Error(), Name: named.FaultName(), Detail: named, Cause: err}
	}

	var coded CodedError
	if errors.As(err, &coded) {
		return WrapFault(coded.FaultCode(), err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapFault(FaultTimeout, err)
	case errors.Is(err, context.Canceled):
		return WrapFault(FaultTimeout, err)
	case errors.Is(err, ErrUnknownOperation):
		return WrapFault(FaultClient, err)
	}

	return WrapFault(FaultServer, err)
}

// IsFault checks if err carries a fault with the given code
func IsFault(err error, code FaultCode) bool {
	var fault *Fault
	return errors.As(err, &fault) && fault.Code == code
}
