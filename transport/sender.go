package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/internal/reliability"
	"github.com/glimte/relay-go/phase"
)

const (
	MessageSenderID       = "MessageSenderInterceptor"
	MessageSenderEndingID = "MessageSenderEndingInterceptor"
)

// MessageSenderInterceptor prepares the exchange's conduit before anything is
// written, and sends the written payload once every other phase has run.
type MessageSenderInterceptor struct {
	interceptors.Base
	ending *messageSenderEnding
}

// NewMessageSenderInterceptor creates the sender. Failed sends are repeated
// according to policy; nil means no retries.
func NewMessageSenderInterceptor(policy reliability.RetryPolicy, logger *slog.Logger) *MessageSenderInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageSenderInterceptor{
		Base: interceptors.NewBase(MessageSenderID, phase.PrepareSend),
		ending: &messageSenderEnding{
			Base:   interceptors.NewBase(MessageSenderEndingID, phase.PrepareSendEnding),
			policy: policy,
			logger: logger,
		},
	}
}

func (i *MessageSenderInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	conduit, err := conduitOf(msg)
	if err != nil {
		return err
	}
	if err := conduit.Prepare(ctx, msg); err != nil {
		return transportFault(conduit, "prepare", err)
	}

	chain, ok := interceptors.ChainFromContext(ctx)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "message sender runs outside a chain")
	}
	return chain.Add(i.ending)
}

type messageSenderEnding struct {
	interceptors.Base
	policy reliability.RetryPolicy
	logger *slog.Logger
}

func (i *messageSenderEnding) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	conduit, err := conduitOf(msg)
	if err != nil {
		return err
	}

	attempts := 0
	err = reliability.Retry(ctx, "send", i.policy, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			i.logger.Debug("retrying send",
				"messageId", msg.ID,
				"target", conduit.Target(),
				"attempt", attempts)
		}
		return conduit.Close(ctx, msg)
	})
	if err != nil {
		return transportFault(conduit, "send", err)
	}
	msg.Exchange().MarkDispatched()
	return nil
}

func conduitOf(msg *contracts.Message) (Conduit, error) {
	ex := msg.Exchange()
	if ex == nil {
		return nil, contracts.ErrNoExchange
	}
	conduit, ok := contracts.Attached[Conduit](ex)
	if !ok || conduit == nil {
		return nil, contracts.NewFault(contracts.FaultServer, "exchange has no conduit")
	}
	return conduit, nil
}

func transportFault(conduit Conduit, op string, err error) error {
	var fault *contracts.Fault
	if errors.As(err, &fault) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return contracts.WrapFault(contracts.FaultTimeout, err)
	}
	return contracts.WrapFault(contracts.FaultTransport, fmt.Errorf("%s to %s: %w", op, conduit.Target(), err))
}
