package interceptors

import (
	"context"

	"github.com/glimte/relay-go/contracts"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	chainContextKey   contextKey = "relay:interceptor:chain"
	messageContextKey contextKey = "relay:interceptor:message"
)

// ContextBinder re-attaches per-exchange values to a context. Binders run
// before every interceptor call, so values survive a pause on one goroutine
// and a resume on another.
type ContextBinder interface {
	Bind(ctx context.Context, msg *contracts.Message) context.Context
}

// ContextBinderFunc is a function adapter for ContextBinder
type ContextBinderFunc func(ctx context.Context, msg *contracts.Message) context.Context

// Bind implements ContextBinder
func (f ContextBinderFunc) Bind(ctx context.Context, msg *contracts.Message) context.Context {
	return f(ctx, msg)
}

// ChainFromContext returns the chain running the current interceptor
func ChainFromContext(ctx context.Context) (*PhaseInterceptorChain, bool) {
	chain, ok := ctx.Value(chainContextKey).(*PhaseInterceptorChain)
	return chain, ok
}

// MessageFromContext returns the message being processed by the current interceptor
func MessageFromContext(ctx context.Context) (*contracts.Message, bool) {
	msg, ok := ctx.Value(messageContextKey).(*contracts.Message)
	return msg, ok
}

// ChainOf returns the phase chain processing a message, if any
func ChainOf(msg *contracts.Message) (*PhaseInterceptorChain, bool) {
	if msg == nil {
		return nil, false
	}
	chain, ok := msg.Chain().(*PhaseInterceptorChain)
	return chain, ok
}

func (c *PhaseInterceptorChain) bind(ctx context.Context, msg *contracts.Message) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, chainContextKey, c)
	ctx = context.WithValue(ctx, messageContextKey, msg)
	c.mu.Lock()
	binders := c.binders
	c.mu.Unlock()
	for _, binder := range binders {
		ctx = binder.Bind(ctx, msg)
	}
	return ctx
}
