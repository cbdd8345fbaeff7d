package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
)

// OperationInInterceptor resolves the binding operation named by an inbound
// message and attaches it to the exchange
type OperationInInterceptor struct {
	interceptors.Base
	info *service.BindingInfo
}

// NewOperationInInterceptor creates an operation resolver for a binding
func NewOperationInInterceptor(info *service.BindingInfo) *OperationInInterceptor {
	return &OperationInInterceptor{
		Base: interceptors.NewBase(OperationInID, phase.PostProtocol),
		info: info,
	}
}

func (i *OperationInInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	ex := msg.Exchange()
	if ex == nil {
		return contracts.ErrNoExchange
	}
	if _, resolved := contracts.Attached[*service.BindingOperationInfo](ex); resolved {
		return nil
	}

	name := msg.Operation()
	bop, ok := i.info.Operation(name)
	if !ok {
		return contracts.WrapFault(contracts.FaultClient,
			fmt.Errorf("%w: %q in binding %s", contracts.ErrUnknownOperation, name, i.info.Name))
	}

	contracts.Attach(ex, bop)
	ex.SetOneWay(bop.Operation.OneWay())
	return nil
}

// FaultInInterceptor turns a fault envelope received by a requestor back
// into a Fault. A declared fault gets its detail decoded into the registered
// type.
type FaultInInterceptor struct {
	interceptors.Base
	types  *databinding.TypeRegistry
	logger *slog.Logger
}

// NewFaultInInterceptor creates a fault reader
func NewFaultInInterceptor(types *databinding.TypeRegistry, logger *slog.Logger) *FaultInInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &FaultInInterceptor{
		Base:   interceptors.NewBase(FaultInID, phase.Unmarshal),
		types:  types,
		logger: logger,
	}
	i.AddBefore(databinding.SchemaValidationID, databinding.UnmarshalID)
	return i
}

func (i *FaultInInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	if !msg.IsRequestor() {
		return nil
	}
	env, ok := contracts.Content[*contracts.Envelope](msg)
	if !ok || !env.IsFault() {
		return nil
	}

	fault := env.Fault.ToFault()
	if detail := i.detail(msg, env.Fault); detail != nil {
		fault.Detail = detail
	}
	return fault
}

func (i *FaultInInterceptor) detail(msg *contracts.Message, fe *contracts.FaultEnvelope) interface{} {
	if fe.Name == "" || len(fe.Detail) == 0 || i.types == nil {
		return nil
	}
	bop, ok := contracts.Attached[*service.BindingOperationInfo](msg.Exchange())
	if !ok {
		return nil
	}
	fi, ok := bop.Operation.Fault(fe.Name)
	if !ok || fi.Message == nil || len(fi.Message.Parts) != 1 {
		return nil
	}

	instance, err := i.types.CreateInstance(fi.Message.Parts[0].TypeName)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(fe.Detail, instance); err != nil {
		i.logger.Debug("failed to decode fault detail", "fault", fe.Name, "error", err)
		return nil
	}
	return instance
}

// FaultOutInterceptor writes the fault of an outbound fault message into the
// envelope, in place of the body
type FaultOutInterceptor struct {
	interceptors.Base
}

// NewFaultOutInterceptor creates a fault writer
func NewFaultOutInterceptor() *FaultOutInterceptor {
	return &FaultOutInterceptor{Base: interceptors.NewBase(FaultOutID, phase.Marshal)}
}

func (i *FaultOutInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	fault := msg.Fault()
	if fault == nil {
		return nil
	}

	fe := &contracts.FaultEnvelope{
		Code:   fault.Code,
		Reason: fault.Reason,
		Name:   fault.Name,
	}
	if fault.Detail != nil {
		if data, err := json.Marshal(fault.Detail); err == nil && string(data) != "{}" {
			fe.Detail = data
		}
	}
	contracts.SetContent(msg, fe)
	return nil
}
