package service

// Visitor receives begin/end callbacks while a service contract is walked
type Visitor interface {
	BeginService(si *ServiceInfo)
	EndService(si *ServiceInfo)
	BeginInterface(ii *InterfaceInfo)
	EndInterface(ii *InterfaceInfo)
	BeginOperation(op *OperationInfo)
	EndOperation(op *OperationInfo)
	BeginInput(op *OperationInfo, mi *MessageInfo)
	EndInput(op *OperationInfo, mi *MessageInfo)
	BeginOutput(op *OperationInfo, mi *MessageInfo)
	EndOutput(op *OperationInfo, mi *MessageInfo)
	BeginFault(op *OperationInfo, fi *FaultInfo)
	EndFault(op *OperationInfo, fi *FaultInfo)
	BeginMessagePart(part *MessagePartInfo)
	EndMessagePart(part *MessagePartInfo)
	BeginUnwrappedOperation(op *OperationInfo)
	EndUnwrappedOperation(op *OperationInfo)
	BeginEndpoint(ep *EndpointInfo)
	EndEndpoint(ep *EndpointInfo)
	BeginBinding(b *BindingInfo)
	EndBinding(b *BindingInfo)
	BeginBindingOperation(bop *BindingOperationInfo)
	EndBindingOperation(bop *BindingOperationInfo)
}

// BaseVisitor implements Visitor with no-ops. Embed it and override what you need.
type BaseVisitor struct{}

func (BaseVisitor) BeginService(*ServiceInfo)                   {}
func (BaseVisitor) EndService(*ServiceInfo)                     {}
func (BaseVisitor) BeginInterface(*InterfaceInfo)               {}
func (BaseVisitor) EndInterface(*InterfaceInfo)                 {}
func (BaseVisitor) BeginOperation(*OperationInfo)               {}
func (BaseVisitor) EndOperation(*OperationInfo)                 {}
func (BaseVisitor) BeginInput(*OperationInfo, *MessageInfo)     {}
func (BaseVisitor) EndInput(*OperationInfo, *MessageInfo)       {}
func (BaseVisitor) BeginOutput(*OperationInfo, *MessageInfo)    {}
func (BaseVisitor) EndOutput(*OperationInfo, *MessageInfo)      {}
func (BaseVisitor) BeginFault(*OperationInfo, *FaultInfo)       {}
func (BaseVisitor) EndFault(*OperationInfo, *FaultInfo)         {}
func (BaseVisitor) BeginMessagePart(*MessagePartInfo)           {}
func (BaseVisitor) EndMessagePart(*MessagePartInfo)             {}
func (BaseVisitor) BeginUnwrappedOperation(*OperationInfo)      {}
func (BaseVisitor) EndUnwrappedOperation(*OperationInfo)        {}
func (BaseVisitor) BeginEndpoint(*EndpointInfo)                 {}
func (BaseVisitor) EndEndpoint(*EndpointInfo)                   {}
func (BaseVisitor) BeginBinding(*BindingInfo)                   {}
func (BaseVisitor) EndBinding(*BindingInfo)                     {}
func (BaseVisitor) BeginBindingOperation(*BindingOperationInfo) {}
func (BaseVisitor) EndBindingOperation(*BindingOperationInfo)   {}

// walker tracks visited messages, parts and faults by identity. Wrapped and
// unwrapped operations share them, and each must be seen once.
type walker struct {
	v       Visitor
	visited map[interface{}]struct{}
}

func (w *walker) first(node interface{}) bool {
	if _, seen := w.visited[node]; seen {
		return false
	}
	w.visited[node] = struct{}{}
	return true
}

// Walk traverses the contract depth first: service, interface, operations
// (input, output, faults, unwrapped operation), endpoints, bindings and their
// operations.
func Walk(si *ServiceInfo, v Visitor) {
	if si == nil {
		return
	}
	w := &walker{v: v, visited: make(map[interface{}]struct{})}

	v.BeginService(si)
	if si.Interface != nil {
		v.BeginInterface(si.Interface)
		for _, op := range si.Interface.Operations() {
			v.BeginOperation(op)
			w.operation(op)
			v.EndOperation(op)
		}
		v.EndInterface(si.Interface)
	}

	for _, ep := range si.Endpoints {
		v.BeginEndpoint(ep)
		v.EndEndpoint(ep)
	}

	for _, b := range si.Bindings {
		v.BeginBinding(b)
		for _, bop := range b.Operations() {
			v.BeginBindingOperation(bop)
			v.EndBindingOperation(bop)
		}
		v.EndBinding(b)
	}
	v.EndService(si)
}

func (w *walker) operation(op *OperationInfo) {
	if op.Input != nil && w.first(op.Input) {
		w.v.BeginInput(op, op.Input)
		w.parts(op.Input)
		w.v.EndInput(op, op.Input)
	}
	if op.Output != nil && w.first(op.Output) {
		w.v.BeginOutput(op, op.Output)
		w.parts(op.Output)
		w.v.EndOutput(op, op.Output)
	}
	for _, fault := range op.Faults {
		if !w.first(fault) {
			continue
		}
		w.v.BeginFault(op, fault)
		if fault.Message != nil && w.first(fault.Message) {
			w.parts(fault.Message)
		}
		w.v.EndFault(op, fault)
	}

	if op.Unwrapped != nil && w.first(op.Unwrapped) {
		w.v.BeginUnwrappedOperation(op.Unwrapped)
		w.operation(op.Unwrapped)
		w.v.EndUnwrappedOperation(op.Unwrapped)
	}
}

func (w *walker) parts(mi *MessageInfo) {
	for _, part := range mi.Parts {
		if !w.first(part) {
			continue
		}
		w.v.BeginMessagePart(part)
		w.v.EndMessagePart(part)
	}
}
