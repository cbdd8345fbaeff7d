package endpoint

import (
	"fmt"

	"github.com/glimte/relay-go/binding"
	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/service"
)

// Endpoint is a service reachable at one address over one binding. It
// contributes interceptors to every chain it takes part in. A server or
// client adds its own interceptors to the endpoint, so each endpoint backs
// exactly one of them.
type Endpoint struct {
	interceptors.Providers

	bus     *bus.Bus
	info    *service.EndpointInfo
	binding binding.Binding
	binders []interceptors.ContextBinder
}

// New creates the endpoint for info using the bus's binding registry
func New(b *bus.Bus, info *service.EndpointInfo) (*Endpoint, error) {
	if info == nil || info.Service == nil {
		return nil, contracts.NewConfigurationError("Endpoint", "New", "endpoint info must belong to a service")
	}
	if info.Binding == nil {
		return nil, contracts.NewConfigurationError("Endpoint", "New",
			fmt.Sprintf("endpoint %q has no binding", info.Name))
	}
	bnd, err := b.Bindings().Create(info.Binding)
	if err != nil {
		return nil, contracts.NewConfigurationError("Endpoint", "New", err.Error())
	}
	return &Endpoint{
		bus:     b,
		info:    info,
		binding: bnd,
		binders: []interceptors.ContextBinder{b, interceptors.PrincipalBinder},
	}, nil
}

// Bus returns the bus the endpoint was created on
func (e *Endpoint) Bus() *bus.Bus { return e.bus }

// Info returns the endpoint description
func (e *Endpoint) Info() *service.EndpointInfo { return e.info }

// Service returns the service the endpoint exposes
func (e *Endpoint) Service() *service.ServiceInfo { return e.info.Service }

// Binding returns the binding applied to the endpoint
func (e *Endpoint) Binding() binding.Binding { return e.binding }

// Binders returns the context binders applied to every chain of the
// endpoint. The bus and the exchange principal are always bound.
func (e *Endpoint) Binders() []interceptors.ContextBinder {
	return append([]interceptors.ContextBinder(nil), e.binders...)
}

// AddBinders appends context binders. Call it before the endpoint backs a
// running server or client.
func (e *Endpoint) AddBinders(binders ...interceptors.ContextBinder) {
	e.binders = append(e.binders, binders...)
}

// template sorts the interceptors of the bus, the endpoint and its binding
// into a chain prototype for kind
func (e *Endpoint) template(kind interceptors.ChainKind, direction contracts.Direction) (*interceptors.Template, error) {
	t, err := interceptors.NewTemplate(kind, e.bus.Phases().Phases(direction), e.bus.Logger(),
		e.bus, e, e.binding)
	if err != nil {
		return nil, fmt.Errorf("build %s chain for endpoint %s: %w", kind, e.info.Name, err)
	}
	return t, nil
}

// attach binds the runtime objects interceptors look up on an exchange
func (e *Endpoint) attach(ex *contracts.Exchange) {
	contracts.Attach(ex, e.bus)
	contracts.Attach(ex, e)
	contracts.Attach(ex, e.info.Service)
	contracts.Attach(ex, e.info)
}

// Of returns the endpoint attached to an exchange
func Of(ex *contracts.Exchange) (*Endpoint, bool) {
	return contracts.Attached[*Endpoint](ex)
}

// Templates holds the sorted chain prototypes of a server or client
type Templates struct {
	In       *interceptors.Template
	Out      *interceptors.Template
	InFault  *interceptors.Template
	OutFault *interceptors.Template
}
