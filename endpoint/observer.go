package endpoint

import (
	"context"
	"log/slog"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/transport"
)

// OutgoingChainID is the id of the OutgoingChainInterceptor
const OutgoingChainID = "OutgoingChainInterceptor"

// ChainInitiationObserver receives requests from a destination. Every
// request gets its own exchange and a clone of the endpoint's inbound chain.
type ChainInitiationObserver struct {
	endpoint    *Endpoint
	destination transport.Destination
	in          *interceptors.Template
	faults      *OutFaultChainInitiator
	executor    invoker.Executor
	logger      *slog.Logger
}

// NewChainInitiationObserver creates the observer. A nil executor runs each
// chain on the delivering goroutine.
func NewChainInitiationObserver(ep *Endpoint, dest transport.Destination, in *interceptors.Template,
	faults *OutFaultChainInitiator, executor invoker.Executor) *ChainInitiationObserver {
	return &ChainInitiationObserver{
		endpoint:    ep,
		destination: dest,
		in:          in,
		faults:      faults,
		executor:    executor,
		logger:      ep.Bus().Logger(),
	}
}

// OnMessage implements transport.MessageObserver
func (o *ChainInitiationObserver) OnMessage(ctx context.Context, msg *contracts.Message) {
	ex := contracts.NewExchange()
	msg.Direction = contracts.Inbound
	msg.SetRequestor(false)
	ex.SetInMessage(msg)
	o.endpoint.attach(ex)
	contracts.Attach(ex, o.destination)

	chain := o.in.Clone(
		interceptors.WithLogger(o.logger),
		interceptors.WithFaultObserver(o.faults),
		interceptors.WithContextBinders(o.endpoint.Binders()...),
	)

	// processing outlives the delivery; timeouts are injected with Fail
	ctx = context.WithoutCancel(ctx)
	run := func() {
		switch chain.DoIntercept(ctx, msg) {
		case interceptors.OutcomeAborted:
			o.logger.Debug("inbound chain aborted", "messageId", msg.ID)
			ex.Complete()
		case interceptors.OutcomeComplete:
			// one-way exchanges that stopped short of the outgoing interceptor
			if ex.OneWay() {
				ex.Complete()
			}
		}
	}

	if o.executor == nil {
		run()
		return
	}
	o.executor.Execute(run)
}

// OutgoingChainInterceptor sends the response of an exchange back through
// the destination's back channel. It runs last on the inbound chain.
type OutgoingChainInterceptor struct {
	interceptors.Base
	out    *interceptors.Template
	faults *OutFaultChainInitiator
	logger *slog.Logger
}

// NewOutgoingChainInterceptor creates the interceptor
func NewOutgoingChainInterceptor(out *interceptors.Template, faults *OutFaultChainInitiator, logger *slog.Logger) *OutgoingChainInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutgoingChainInterceptor{
		Base:   interceptors.NewBase(OutgoingChainID, phase.PostInvoke),
		out:    out,
		faults: faults,
		logger: logger,
	}
}

func (i *OutgoingChainInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	ex := msg.Exchange()
	if ex == nil {
		return contracts.ErrNoExchange
	}
	out := ex.OutMessage()
	if ex.OneWay() || out == nil {
		ex.Complete()
		return nil
	}

	conduit, err := backChannel(ex)
	if err != nil {
		return contracts.WrapFault(contracts.FaultServer, err)
	}
	// a timeout that fires from here on must not answer the exchange twice
	if in, ok := interceptors.ChainFromContext(ctx); ok && !in.Commit() {
		return nil
	}
	contracts.Attach(ex, conduit)
	respondTo(msg, out)

	opts := []interceptors.ChainOption{
		interceptors.WithLogger(i.logger),
		interceptors.WithFaultObserver(i.faults),
	}
	if ep, ok := Of(ex); ok {
		opts = append(opts, interceptors.WithContextBinders(ep.Binders()...))
	}
	chain := i.out.Clone(opts...)

	switch chain.DoIntercept(ctx, out) {
	case interceptors.OutcomeComplete, interceptors.OutcomeAborted:
		ex.Complete()
	}
	return nil
}

// respondTo copies what the requestor needs to match a response
func respondTo(in, out *contracts.Message) {
	out.Direction = contracts.Outbound
	out.SetRequestor(false)
	cid := in.CorrelationID()
	if cid == "" {
		cid = in.ID
	}
	out.Put(contracts.PropCorrelationID, cid)
	if out.Operation() == "" && in.Operation() != "" {
		out.Put(contracts.PropOperation, in.Operation())
	}
}

func backChannel(ex *contracts.Exchange) (transport.Conduit, error) {
	if conduit, ok := contracts.Attached[transport.Conduit](ex); ok {
		return conduit, nil
	}
	dest, ok := contracts.Attached[transport.Destination](ex)
	if !ok {
		return nil, transport.ErrNoReplyTo
	}
	return dest.BackChannel(ex.InMessage())
}

// OutFaultChainInitiator is the fault observer of a provider's chains. It
// turns the fault into an out-fault message and sends it through the
// out-fault chain. Faults of one-way exchanges are only logged.
type OutFaultChainInitiator struct {
	outFault *interceptors.Template
	logger   *slog.Logger
}

// NewOutFaultChainInitiator creates the initiator
func NewOutFaultChainInitiator(outFault *interceptors.Template, logger *slog.Logger) *OutFaultChainInitiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutFaultChainInitiator{outFault: outFault, logger: logger}
}

// OnFault implements interceptors.FaultObserver
func (o *OutFaultChainInitiator) OnFault(ctx context.Context, msg *contracts.Message) {
	ex := msg.Exchange()
	fault := msg.Fault()
	if ex == nil {
		o.logger.Error("fault outside an exchange", "messageId", msg.ID, "error", fault)
		return
	}
	defer ex.Complete()

	in := ex.InMessage()
	if in == nil {
		in = msg
	}
	if ex.OneWay() {
		o.logger.Warn("one-way exchange faulted",
			"messageId", in.ID,
			"operation", in.Operation(),
			"error", fault)
		return
	}
	if ex.Dispatched() {
		o.logger.Warn("exchange already answered, dropping fault",
			"messageId", in.ID,
			"operation", in.Operation(),
			"error", fault)
		return
	}
	if ex.OutFaultMessage() != nil {
		o.logger.Error("out-fault chain faulted, dropping fault",
			"messageId", in.ID,
			"error", fault)
		return
	}

	faultMsg := contracts.NewMessage(contracts.Outbound)
	faultMsg.SetFault(fault)
	respondTo(in, faultMsg)
	ex.SetOutFaultMessage(faultMsg)

	conduit, err := backChannel(ex)
	if err != nil {
		o.logger.Error("cannot return fault to requestor",
			"messageId", in.ID,
			"fault", fault,
			"error", err)
		return
	}
	contracts.Attach(ex, conduit)

	opts := []interceptors.ChainOption{
		interceptors.WithLogger(o.logger),
		interceptors.WithFaultObserver(interceptors.FaultObserverFunc(func(ctx context.Context, m *contracts.Message) {
			o.logger.Error("failed to send fault",
				"messageId", in.ID,
				"fault", fault,
				"error", m.Fault())
		})),
	}
	if ep, ok := Of(ex); ok {
		opts = append(opts, interceptors.WithContextBinders(ep.Binders()...))
	}
	o.outFault.Clone(opts...).DoIntercept(ctx, faultMsg)
}
