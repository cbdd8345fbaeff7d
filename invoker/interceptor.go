package invoker

import (
	"context"
	"log/slog"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/phase"
)

// ServiceInvokerID is the id of the ServiceInvokerInterceptor
const ServiceInvokerID = "ServiceInvokerInterceptor"

// Executor runs a task, possibly on another goroutine
type Executor interface {
	Execute(task func())
}

// ServiceInvokerInterceptor hands the decoded parts of an inbound message to
// an Invoker and stores the result as the exchange's outbound message.
//
// With an Executor the chain is paused, the invoker runs on the executor, and
// the chain is resumed afterwards or failed with the invoker's error.
type ServiceInvokerInterceptor struct {
	interceptors.Base
	invoker  Invoker
	executor Executor
	logger   *slog.Logger
}

// InterceptorOption configures a ServiceInvokerInterceptor
type InterceptorOption func(*ServiceInvokerInterceptor)

// WithExecutor makes invocation asynchronous
func WithExecutor(executor Executor) InterceptorOption {
	return func(i *ServiceInvokerInterceptor) {
		i.executor = executor
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) InterceptorOption {
	return func(i *ServiceInvokerInterceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewServiceInvokerInterceptor creates the invoke-phase interceptor
func NewServiceInvokerInterceptor(invoker Invoker, opts ...InterceptorOption) *ServiceInvokerInterceptor {
	i := &ServiceInvokerInterceptor{
		Base:    interceptors.NewBase(ServiceInvokerID, phase.Invoke),
		invoker: invoker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *ServiceInvokerInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	ex := msg.Exchange()
	if ex == nil {
		return contracts.ErrNoExchange
	}
	args, _ := contracts.Content[contracts.Parts](msg)

	chain, ok := interceptors.ChainFromContext(ctx)
	if i.executor == nil || !ok {
		result, err := i.invoker.Invoke(ctx, ex, args)
		if err != nil {
			return err
		}
		i.respond(ex, msg, result)
		return nil
	}

	chain.Pause()
	i.executor.Execute(func() {
		result, err := i.invoker.Invoke(ctx, ex, args)
		if err != nil {
			if !chain.Fail(ctx, err) {
				i.logger.Warn("invocation failed after the chain finished",
					"exchangeId", ex.ID,
					"error", err)
			}
			return
		}
		i.respond(ex, msg, result)
		if err := chain.Resume(ctx); err != nil {
			i.logger.Warn("failed to resume chain after invocation",
				"exchangeId", ex.ID,
				"error", err)
		}
	})
	return nil
}

func (i *ServiceInvokerInterceptor) respond(ex *contracts.Exchange, in *contracts.Message, result contracts.Parts) {
	if ex.OneWay() {
		return
	}
	out := contracts.NewMessage(contracts.Outbound)
	out.Put(contracts.PropOperation, in.Operation())
	if result == nil {
		result = contracts.Parts{}
	}
	contracts.SetContent(out, result)
	ex.SetOutMessage(out)
}
