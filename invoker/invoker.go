package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
)

// Invoker calls application code for the operation of an exchange
type Invoker interface {
	Invoke(ctx context.Context, ex *contracts.Exchange, args contracts.Parts) (contracts.Parts, error)
}

// InvokerFunc is a function adapter for Invoker
type InvokerFunc func(ctx context.Context, ex *contracts.Exchange, args contracts.Parts) (contracts.Parts, error)

// Invoke implements Invoker
func (f InvokerFunc) Invoke(ctx context.Context, ex *contracts.Exchange, args contracts.Parts) (contracts.Parts, error) {
	return f(ctx, ex, args)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// BeanInvoker calls the method bound to the exchange's operation on a bean
// supplied by a Factory. Returned errors and panics become faults.
type BeanInvoker struct {
	factory    Factory
	dispatcher *MethodDispatcher
	logger     *slog.Logger
}

// NewBeanInvoker creates a bean invoker
func NewBeanInvoker(factory Factory, dispatcher *MethodDispatcher, logger *slog.Logger) *BeanInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BeanInvoker{factory: factory, dispatcher: dispatcher, logger: logger}
}

// Invoke implements Invoker
func (i *BeanInvoker) Invoke(ctx context.Context, ex *contracts.Exchange, args contracts.Parts) (result contracts.Parts, err error) {
	bop, ok := contracts.Attached[*service.BindingOperationInfo](ex)
	if !ok || bop.Operation == nil {
		return nil, contracts.WrapFault(contracts.FaultClient, contracts.ErrUnknownOperation)
	}
	op := bop.Operation
	if op.Wrapped != nil {
		op = op.Wrapped
	}

	method, ok := i.dispatcher.Method(op.Name)
	if !ok {
		return nil, contracts.WrapFault(contracts.FaultClient,
			fmt.Errorf("%w: no method for %q", contracts.ErrUnknownOperation, op.Name))
	}

	bean, err := i.factory.Create(ctx, ex)
	if err != nil {
		return nil, contracts.WrapFault(contracts.FaultUnavailable, fmt.Errorf("create bean: %w", err))
	}
	defer i.factory.Release(ex, bean)

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("operation panicked",
				"operation", op.Name,
				"exchangeId", ex.ID,
				"panic", r)
			result = nil
			err = contracts.NewFault(contracts.FaultServer, fmt.Sprintf("operation %s panicked: %v", op.Name, r))
		}
	}()

	in, err := i.arguments(method, bean, ctx, args)
	if err != nil {
		return nil, contracts.WrapFault(contracts.FaultClient, err)
	}
	out := method.Func.Call(in)

	if errValue := out[len(out)-1]; !errValue.IsNil() {
		return nil, declaredFault(op, errValue.Interface().(error))
	}
	if len(out) == 1 {
		return nil, nil
	}
	return contracts.Parts{out[0].Interface()}, nil
}

func (i *BeanInvoker) arguments(method reflect.Method, bean interface{}, ctx context.Context, args contracts.Parts) ([]reflect.Value, error) {
	beanValue := reflect.ValueOf(bean)
	if beanValue.Type() != method.Type.In(0) {
		return nil, fmt.Errorf("bean of type %s cannot serve method %s", beanValue.Type(), method.Name)
	}

	paramType := method.Type.In(2)
	arg := reflect.Zero(paramType)
	if len(args) > 0 && args[0] != nil {
		v := reflect.ValueOf(args[0])
		if !v.Type().AssignableTo(paramType) {
			return nil, fmt.Errorf("argument of type %s does not fit %s", v.Type(), paramType)
		}
		arg = v
	}
	return []reflect.Value{beanValue, reflect.ValueOf(ctx), arg}, nil
}

// declaredFault converts err to a fault. A fault name survives only when the
// operation declares it.
func declaredFault(op *service.OperationInfo, err error) *contracts.Fault {
	fault := contracts.AsFault(err)
	if fault.Name == "" {
		return fault
	}
	if _, declared := op.Fault(fault.Name); declared {
		return fault
	}
	undeclared := *fault
	undeclared.Name = ""
	undeclared.Detail = nil
	return &undeclared
}
