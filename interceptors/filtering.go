package interceptors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

// MessageFilter defines the interface for message filtering
type MessageFilter interface {
	// ShouldProcess returns true if the message should be processed
	ShouldProcess(ctx context.Context, msg *contracts.Message) (bool, error)
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(ctx context.Context, msg *contracts.Message) (bool, error)

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(ctx context.Context, msg *contracts.Message) (bool, error) {
	return f(ctx, msg)
}

// SkipBehavior defines what happens when a message is filtered out
type SkipBehavior int

const (
	// SkipSilently aborts the chain and completes the exchange
	SkipSilently SkipBehavior = iota
	// SkipWithFault raises a client fault
	SkipWithFault
	// SkipWithLog logs, then behaves like SkipSilently
	SkipWithLog
)

// FilteringInterceptor stops messages a filter rejects
type FilteringInterceptor struct {
	Base
	filter       MessageFilter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior, logger *slog.Logger, opts ...Option) *FilteringInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilteringInterceptor{
		Base:         newBase("FilteringInterceptor", phase.PreLogical, opts),
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       logger,
	}
}

// HandleMessage implements Interceptor
func (i *FilteringInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	shouldProcess, err := i.filter.ShouldProcess(ctx, msg)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}
	if shouldProcess {
		return nil
	}

	switch i.skipBehavior {
	case SkipWithFault:
		return contracts.NewFault(contracts.FaultClient,
			fmt.Sprintf("message filtered: operation=%s, id=%s", operationOf(msg), msg.ID))
	case SkipWithLog:
		i.logger.Info("message filtered",
			"messageId", msg.ID,
			"operation", operationOf(msg),
		)
	}

	if chain, ok := ChainFromContext(ctx); ok {
		chain.Abort()
	}
	if ex := msg.Exchange(); ex != nil {
		ex.Complete()
	}
	return nil
}

// OperationFilter only lets the listed operations through
func OperationFilter(operations ...string) MessageFilter {
	return MessageFilterFunc(func(ctx context.Context, msg *contracts.Message) (bool, error) {
		return contains(operations, msg.Operation()), nil
	})
}
