package service

// Description is a serializable summary of a service contract
type Description struct {
	Name       string                 `json:"name" yaml:"name"`
	Namespace  string                 `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Version    string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Operations []OperationDescription `json:"operations" yaml:"operations"`
	Endpoints  []EndpointDescription  `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Bindings   []BindingDescription   `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// OperationDescription summarizes one operation
type OperationDescription struct {
	Name   string   `json:"name" yaml:"name"`
	OneWay bool     `json:"oneWay,omitempty" yaml:"oneWay,omitempty"`
	Input  []string `json:"input,omitempty" yaml:"input,omitempty"`
	Output []string `json:"output,omitempty" yaml:"output,omitempty"`
	Faults []string `json:"faults,omitempty" yaml:"faults,omitempty"`
}

// EndpointDescription summarizes one endpoint
type EndpointDescription struct {
	Name      string `json:"name" yaml:"name"`
	Transport string `json:"transport" yaml:"transport"`
	Address   string `json:"address" yaml:"address"`
	Binding   string `json:"binding,omitempty" yaml:"binding,omitempty"`
}

// BindingDescription summarizes one binding
type BindingDescription struct {
	Name       string   `json:"name" yaml:"name"`
	BindingID  string   `json:"bindingId" yaml:"bindingId"`
	Operations []string `json:"operations" yaml:"operations"`
}

type describer struct {
	BaseVisitor
	desc    *Description
	op      *OperationDescription
	binding *BindingDescription
	target  *[]string
}

func (d *describer) BeginService(si *ServiceInfo) {
	d.desc = &Description{Name: si.Name, Namespace: si.Namespace, Version: si.Version}
}

func (d *describer) BeginOperation(op *OperationInfo) {
	d.op = &OperationDescription{Name: op.Name, OneWay: op.OneWay()}
}

func (d *describer) EndOperation(*OperationInfo) {
	d.desc.Operations = append(d.desc.Operations, *d.op)
	d.op = nil
}

func (d *describer) BeginInput(*OperationInfo, *MessageInfo)  { d.target = &d.op.Input }
func (d *describer) EndInput(*OperationInfo, *MessageInfo)    { d.target = nil }
func (d *describer) BeginOutput(*OperationInfo, *MessageInfo) { d.target = &d.op.Output }
func (d *describer) EndOutput(*OperationInfo, *MessageInfo)   { d.target = nil }

func (d *describer) BeginFault(_ *OperationInfo, fi *FaultInfo) {
	d.op.Faults = append(d.op.Faults, fi.Name)
}

func (d *describer) BeginMessagePart(part *MessagePartInfo) {
	if d.target != nil {
		*d.target = append(*d.target, part.Name+": "+part.TypeName)
	}
}

func (d *describer) BeginEndpoint(ep *EndpointInfo) {
	e := EndpointDescription{Name: ep.Name, Transport: ep.TransportID, Address: ep.Address}
	if ep.Binding != nil {
		e.Binding = ep.Binding.Name
	}
	d.desc.Endpoints = append(d.desc.Endpoints, e)
}

func (d *describer) BeginBinding(b *BindingInfo) {
	d.binding = &BindingDescription{Name: b.Name, BindingID: b.BindingID}
}

func (d *describer) BeginBindingOperation(bop *BindingOperationInfo) {
	d.binding.Operations = append(d.binding.Operations, bop.Name)
}

func (d *describer) EndBinding(*BindingInfo) {
	d.desc.Bindings = append(d.desc.Bindings, *d.binding)
	d.binding = nil
}

// Describe summarizes a contract by walking it
func Describe(si *ServiceInfo) *Description {
	d := &describer{}
	Walk(si, d)
	return d.desc
}
