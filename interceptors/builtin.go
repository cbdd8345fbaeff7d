package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

// Option adjusts the phase binding of a built-in interceptor
type Option func(*Base)

// InPhase moves the interceptor to another phase
func InPhase(name string) Option {
	return func(b *Base) {
		b.phase = name
	}
}

// RunsBefore declares ids the interceptor must precede
func RunsBefore(ids ...string) Option {
	return func(b *Base) {
		b.AddBefore(ids...)
	}
}

// RunsAfter declares ids the interceptor must follow
func RunsAfter(ids ...string) Option {
	return func(b *Base) {
		b.AddAfter(ids...)
	}
}

func newBase(id, defaultPhase string, opts []Option) Base {
	b := NewBase(id, defaultPhase)
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func operationOf(msg *contracts.Message) string {
	if op := msg.Operation(); op != "" {
		return op
	}
	if ex := msg.Exchange(); ex != nil {
		if op := ex.GetString(contracts.PropOperation); op != "" {
			return op
		}
	}
	return "unknown"
}

// LoggingInterceptor logs message processing
type LoggingInterceptor struct {
	Base
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger, opts ...Option) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{
		Base:   newBase("LoggingInterceptor", phase.Receive, opts),
		logger: logger,
	}
}

// HandleMessage implements Interceptor
func (i *LoggingInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	start := time.Now()

	i.logger.Info("processing message",
		"messageId", msg.ID,
		"direction", msg.Direction.String(),
		"correlationId", msg.CorrelationID(),
	)

	ex := msg.Exchange()
	if ex == nil {
		return nil
	}

	ex.OnComplete(func() {
		duration := time.Since(start)
		if fault := ex.Fault(); fault != nil {
			i.logger.Error("message processing failed",
				"messageId", msg.ID,
				"operation", operationOf(msg),
				"duration", duration,
				"error", fault,
			)
			return
		}
		i.logger.Info("message processed successfully",
			"messageId", msg.ID,
			"operation", operationOf(msg),
			"duration", duration,
		)
	})
	return nil
}

// HandleFault implements Interceptor
func (i *LoggingInterceptor) HandleFault(ctx context.Context, msg *contracts.Message) {
	i.logger.Warn("unwinding message",
		"messageId", msg.ID,
		"operation", operationOf(msg),
		"error", msg.Fault(),
	)
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	IncrementMessageCount(operation string)
	RecordProcessingTime(operation string, duration time.Duration)
	IncrementErrorCount(operation string, code string)
}

const metricsRecordedKey = "relay.metricsRecorded"

// MetricsInterceptor records counts and latency once the exchange completes
type MetricsInterceptor struct {
	Base
	collector MetricsCollector
}

// NewMetricsInterceptor creates a new metrics interceptor
func NewMetricsInterceptor(collector MetricsCollector, opts ...Option) *MetricsInterceptor {
	return &MetricsInterceptor{
		Base:      newBase("MetricsInterceptor", phase.Receive, opts),
		collector: collector,
	}
}

// HandleMessage implements Interceptor
func (i *MetricsInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	start := time.Now()

	ex := msg.Exchange()
	if ex == nil {
		i.collector.IncrementMessageCount(operationOf(msg))
		return nil
	}

	// an exchange is counted once, by whichever of its chains runs first
	if _, counted := ex.Get(metricsRecordedKey); counted {
		return nil
	}
	ex.Put(metricsRecordedKey, true)

	ex.OnComplete(func() {
		op := operationOf(msg)
		i.collector.IncrementMessageCount(op)
		i.collector.RecordProcessingTime(op, time.Since(start))
		if fault := ex.Fault(); fault != nil {
			i.collector.IncrementErrorCount(op, string(fault.Code))
		}
	})
	return nil
}

// MessageValidator defines the interface for message validation
type MessageValidator interface {
	Validate(ctx context.Context, msg *contracts.Message) error
}

// MessageValidatorFunc is a function adapter for MessageValidator
type MessageValidatorFunc func(ctx context.Context, msg *contracts.Message) error

// Validate implements MessageValidator
func (f MessageValidatorFunc) Validate(ctx context.Context, msg *contracts.Message) error {
	return f(ctx, msg)
}

// ValidationInterceptor rejects invalid messages with a client fault
type ValidationInterceptor struct {
	Base
	validator MessageValidator
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(validator MessageValidator, opts ...Option) *ValidationInterceptor {
	return &ValidationInterceptor{
		Base:      newBase("ValidationInterceptor", phase.PostLogical, opts),
		validator: validator,
	}
}

// HandleMessage implements Interceptor
func (i *ValidationInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	if err := i.validator.Validate(ctx, msg); err != nil {
		return contracts.WrapFault(contracts.FaultClient, fmt.Errorf("message validation failed: %w", err))
	}
	return nil
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// RateLimitingInterceptor limits throughput per operation
type RateLimitingInterceptor struct {
	Base
	limiter RateLimiter
}

// NewRateLimitingInterceptor creates a new rate limiting interceptor
func NewRateLimitingInterceptor(limiter RateLimiter, opts ...Option) *RateLimitingInterceptor {
	return &RateLimitingInterceptor{
		Base:    newBase("RateLimitingInterceptor", phase.UserLogical, opts),
		limiter: limiter,
	}
}

// HandleMessage implements Interceptor
func (i *RateLimitingInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	key := operationOf(msg)
	if err := i.limiter.Allow(ctx, key); err != nil {
		return contracts.WrapFault(contracts.FaultUnavailable,
			fmt.Errorf("rate limit exceeded for operation %s: %w", key, err))
	}
	return nil
}

// timeoutTimer is the content slot holding a running timeout
type timeoutTimer struct {
	timer *time.Timer
}

// TimeoutInterceptor injects a timeout fault into the chain when the exchange
// has not completed in time. The chain unwinds as it would for any fault.
type TimeoutInterceptor struct {
	Base
	timeout time.Duration
	logger  *slog.Logger
}

// NewTimeoutInterceptor creates a new timeout interceptor
func NewTimeoutInterceptor(timeout time.Duration, logger *slog.Logger, opts ...Option) *TimeoutInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutInterceptor{
		Base:    newBase("TimeoutInterceptor", phase.Receive, opts),
		timeout: timeout,
		logger:  logger,
	}
}

// HandleMessage implements Interceptor
func (i *TimeoutInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	chain, ok := ChainFromContext(ctx)
	if !ok {
		return nil
	}

	// later phases rewrite msg, so the timer only sees values taken here
	ex := msg.Exchange()
	id := msg.ID
	if ex != nil {
		id = ex.ID
	}

	failCtx := context.WithoutCancel(ctx)
	timer := time.AfterFunc(i.timeout, func() {
		fault := contracts.NewFault(contracts.FaultTimeout,
			fmt.Sprintf("message processing timeout after %v for exchange %s", i.timeout, id))
		if !chain.Fail(failCtx, fault) {
			i.logger.Debug("timeout fired after chain finished or answered", "exchangeId", id)
		}
	})
	contracts.SetContent(msg, &timeoutTimer{timer: timer})

	if ex != nil {
		ex.OnComplete(func() { timer.Stop() })
	}
	return nil
}

// HandleFault implements Interceptor
func (i *TimeoutInterceptor) HandleFault(ctx context.Context, msg *contracts.Message) {
	if t, ok := contracts.Content[*timeoutTimer](msg); ok {
		t.timer.Stop()
	}
}

// CircuitBreaker guards a target. reliability.CircuitBreaker satisfies it.
type CircuitBreaker interface {
	Allow() error
	Record(err error)
}

// CircuitBreakerInterceptor rejects calls while the breaker is open and feeds
// the exchange outcome back into it
type CircuitBreakerInterceptor struct {
	Base
	breaker CircuitBreaker
}

// NewCircuitBreakerInterceptor creates a new circuit breaker interceptor
func NewCircuitBreakerInterceptor(breaker CircuitBreaker, opts ...Option) *CircuitBreakerInterceptor {
	return &CircuitBreakerInterceptor{
		Base:    newBase("CircuitBreakerInterceptor", phase.Setup, opts),
		breaker: breaker,
	}
}

// HandleMessage implements Interceptor
func (i *CircuitBreakerInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	ex := msg.Exchange()
	if ex == nil {
		return contracts.ErrNoExchange
	}

	if err := i.breaker.Allow(); err != nil {
		return err
	}

	ex.OnComplete(func() {
		var err error
		if fault := ex.Fault(); fault != nil {
			err = fault
		}
		i.breaker.Record(err)
	})
	return nil
}
