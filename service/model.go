package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/glimte/relay-go/contracts"
)

// ServiceInfo is the root of a service contract
type ServiceInfo struct {
	Name        string
	Namespace   string
	Version     string
	Description string

	Interface *InterfaceInfo
	Endpoints []*EndpointInfo
	Bindings  []*BindingInfo
}

// NewServiceInfo creates a service with an empty interface of the same name
func NewServiceInfo(name, namespace, version string) *ServiceInfo {
	si := &ServiceInfo{Name: name, Namespace: namespace, Version: version}
	si.Interface = &InterfaceInfo{Name: name, Service: si, ops: make(map[string]*OperationInfo)}
	return si
}

// QName returns the namespace-qualified service name
func (si *ServiceInfo) QName() string {
	if si.Namespace == "" {
		return si.Name
	}
	return "{" + si.Namespace + "}" + si.Name
}

// AddEndpoint attaches an endpoint
func (si *ServiceInfo) AddEndpoint(name, transportID, address string, binding *BindingInfo) *EndpointInfo {
	ep := &EndpointInfo{
		Name:        name,
		TransportID: transportID,
		Address:     address,
		Binding:     binding,
		Service:     si,
	}
	si.Endpoints = append(si.Endpoints, ep)
	return ep
}

// Endpoint finds an endpoint by name
func (si *ServiceInfo) Endpoint(name string) (*EndpointInfo, bool) {
	for _, ep := range si.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return nil, false
}

// AddBinding creates a binding with a binding operation for every wrapped
// operation of the interface
func (si *ServiceInfo) AddBinding(name, bindingID string) *BindingInfo {
	b := &BindingInfo{
		Name:      name,
		BindingID: bindingID,
		Service:   si,
		ops:       make(map[string]*BindingOperationInfo),
	}
	if si.Interface != nil {
		for _, op := range si.Interface.Operations() {
			b.AddOperation(op)
		}
	}
	si.Bindings = append(si.Bindings, b)
	return b
}

// Binding finds a binding by name
func (si *ServiceInfo) Binding(name string) (*BindingInfo, bool) {
	for _, b := range si.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// InterfaceInfo holds the operations of a service. The operation table may be
// extended while exchanges are in flight.
type InterfaceInfo struct {
	Name    string
	Service *ServiceInfo

	mu    sync.RWMutex
	ops   map[string]*OperationInfo
	order []string
}

// AddOperation adds a new operation. A duplicate name is a configuration error.
func (ii *InterfaceInfo) AddOperation(name string) (*OperationInfo, error) {
	ii.mu.Lock()
	defer ii.mu.Unlock()

	if ii.ops == nil {
		ii.ops = make(map[string]*OperationInfo)
	}
	if _, dup := ii.ops[name]; dup {
		return nil, contracts.NewConfigurationError("InterfaceInfo", "AddOperation",
			fmt.Sprintf("duplicate operation %q in interface %q", name, ii.Name))
	}
	op := &OperationInfo{Name: name, Interface: ii}
	ii.ops[name] = op
	ii.order = append(ii.order, name)
	return op, nil
}

// Operation looks up an operation by name
func (ii *InterfaceInfo) Operation(name string) (*OperationInfo, bool) {
	ii.mu.RLock()
	defer ii.mu.RUnlock()
	op, ok := ii.ops[name]
	return op, ok
}

// Operations returns the operations in the order they were added
func (ii *InterfaceInfo) Operations() []*OperationInfo {
	ii.mu.RLock()
	defer ii.mu.RUnlock()
	out := make([]*OperationInfo, 0, len(ii.order))
	for _, name := range ii.order {
		out = append(out, ii.ops[name])
	}
	return out
}

// RemoveOperation drops an operation
func (ii *InterfaceInfo) RemoveOperation(name string) {
	ii.mu.Lock()
	defer ii.mu.Unlock()
	if _, ok := ii.ops[name]; !ok {
		return
	}
	delete(ii.ops, name)
	for i, n := range ii.order {
		if n == name {
			ii.order = append(ii.order[:i], ii.order[i+1:]...)
			break
		}
	}
}

// OperationInfo describes one operation. A wrapped operation may carry an
// unwrapped view whose messages are the very same instances.
type OperationInfo struct {
	Name      string
	Interface *InterfaceInfo

	Input  *MessageInfo
	Output *MessageInfo
	Faults []*FaultInfo

	Unwrapped *OperationInfo
	Wrapped   *OperationInfo
}

// SetInput creates the input message
func (op *OperationInfo) SetInput(name string) *MessageInfo {
	op.Input = &MessageInfo{Name: name, Type: InputMessage, Operation: op}
	return op.Input
}

// SetOutput creates the output message
func (op *OperationInfo) SetOutput(name string) *MessageInfo {
	op.Output = &MessageInfo{Name: name, Type: OutputMessage, Operation: op}
	return op.Output
}

// AddFault declares a fault with its own message
func (op *OperationInfo) AddFault(name, messageName string) *FaultInfo {
	f := &FaultInfo{
		Name:      name,
		Operation: op,
		Message:   &MessageInfo{Name: messageName, Type: FaultMessage, Operation: op},
	}
	op.Faults = append(op.Faults, f)
	return f
}

// Fault finds a declared fault by name
func (op *OperationInfo) Fault(name string) (*FaultInfo, bool) {
	for _, f := range op.Faults {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// OneWay reports whether the operation has no response
func (op *OperationInfo) OneWay() bool {
	return op.Output == nil
}

// IsUnwrapped reports whether this is the unwrapped view of another operation
func (op *OperationInfo) IsUnwrapped() bool {
	return op.Wrapped != nil
}

// NewUnwrapped creates the unwrapped view. It shares the input, output and
// fault instances of op.
func (op *OperationInfo) NewUnwrapped() *OperationInfo {
	u := &OperationInfo{
		Name:      op.Name,
		Interface: op.Interface,
		Input:     op.Input,
		Output:    op.Output,
		Faults:    op.Faults,
		Wrapped:   op,
	}
	op.Unwrapped = u
	return u
}

// MessageType tells input, output and fault messages apart
type MessageType int

const (
	InputMessage MessageType = iota
	OutputMessage
	FaultMessage
)

func (t MessageType) String() string {
	switch t {
	case InputMessage:
		return "input"
	case OutputMessage:
		return "output"
	case FaultMessage:
		return "fault"
	default:
		return "unknown"
	}
}

// MessageInfo is an ordered list of parts
type MessageInfo struct {
	Name      string
	Type      MessageType
	Operation *OperationInfo
	Parts     []*MessagePartInfo
}

// AddPart appends a part. TypeName refers to an entry of the type registry.
func (mi *MessageInfo) AddPart(name, typeName string) *MessagePartInfo {
	p := &MessagePartInfo{Name: name, Index: len(mi.Parts), TypeName: typeName, Message: mi}
	mi.Parts = append(mi.Parts, p)
	return p
}

// Part finds a part by name
func (mi *MessageInfo) Part(name string) (*MessagePartInfo, bool) {
	for _, p := range mi.Parts {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// MessagePartInfo is one typed part of a message
type MessagePartInfo struct {
	Name     string
	Index    int
	TypeName string
	// Schema is an optional JSON schema the part must satisfy
	Schema  json.RawMessage
	Message *MessageInfo
}

// FaultInfo is a declared fault of an operation
type FaultInfo struct {
	Name      string
	Operation *OperationInfo
	Message   *MessageInfo
}

// EndpointInfo is an addressable instance of a service over a transport
type EndpointInfo struct {
	Name        string
	TransportID string
	Address     string
	Binding     *BindingInfo
	Service     *ServiceInfo
	Properties  map[string]string
}

// BindingInfo maps the interface onto a wire format
type BindingInfo struct {
	Name      string
	BindingID string
	Service   *ServiceInfo

	mu    sync.RWMutex
	ops   map[string]*BindingOperationInfo
	order []string
}

// AddOperation binds an operation. Rebinding the same name returns the
// existing binding operation.
func (b *BindingInfo) AddOperation(op *OperationInfo) *BindingOperationInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ops == nil {
		b.ops = make(map[string]*BindingOperationInfo)
	}
	if existing, ok := b.ops[op.Name]; ok {
		return existing
	}
	bop := &BindingOperationInfo{Name: op.Name, Operation: op, Binding: b}
	if op.Unwrapped != nil {
		bop.Unwrapped = &BindingOperationInfo{Name: op.Name, Operation: op.Unwrapped, Binding: b, Wrapped: bop}
	}
	b.ops[op.Name] = bop
	b.order = append(b.order, op.Name)
	return bop
}

// Operation finds a binding operation by name
func (b *BindingInfo) Operation(name string) (*BindingOperationInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bop, ok := b.ops[name]
	return bop, ok
}

// Operations returns the binding operations in the order they were added
func (b *BindingInfo) Operations() []*BindingOperationInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*BindingOperationInfo, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.ops[name])
	}
	return out
}

// BindingOperationInfo is an operation as seen through a binding
type BindingOperationInfo struct {
	Name      string
	Operation *OperationInfo
	Binding   *BindingInfo
	Unwrapped *BindingOperationInfo
	Wrapped   *BindingOperationInfo
}
