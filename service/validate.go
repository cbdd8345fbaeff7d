package service

import (
	"errors"
	"fmt"
)

type validator struct {
	BaseVisitor
	errs []error
}

func (v *validator) addf(format string, args ...interface{}) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) BeginOperation(op *OperationInfo) {
	if op.Input == nil {
		v.addf("operation %q has no input message", op.Name)
	}
}

func (v *validator) BeginInput(op *OperationInfo, mi *MessageInfo) {
	v.checkParts(op, mi)
}

func (v *validator) BeginOutput(op *OperationInfo, mi *MessageInfo) {
	v.checkParts(op, mi)
}

func (v *validator) BeginFault(op *OperationInfo, fi *FaultInfo) {
	if fi.Message == nil {
		v.addf("fault %q of operation %q has no message", fi.Name, op.Name)
		return
	}
	v.checkParts(op, fi.Message)
}

func (v *validator) checkParts(op *OperationInfo, mi *MessageInfo) {
	seen := make(map[string]struct{}, len(mi.Parts))
	for _, part := range mi.Parts {
		if _, dup := seen[part.Name]; dup {
			v.addf("message %q of operation %q has duplicate part %q", mi.Name, op.Name, part.Name)
			continue
		}
		seen[part.Name] = struct{}{}
	}
}

func (v *validator) BeginEndpoint(ep *EndpointInfo) {
	if ep.Binding == nil {
		v.addf("endpoint %q has no binding", ep.Name)
	}
	if ep.Address == "" {
		v.addf("endpoint %q has no address", ep.Name)
	}
}

func (v *validator) BeginBindingOperation(bop *BindingOperationInfo) {
	svc := bop.Binding.Service
	if bop.Operation == nil || svc == nil || svc.Interface == nil {
		v.addf("binding operation %q refers to no operation", bop.Name)
		return
	}
	if op, ok := svc.Interface.Operation(bop.Operation.Name); !ok || op != bop.Operation {
		v.addf("binding %q refers to unknown operation %q", bop.Binding.Name, bop.Operation.Name)
	}
}

// Validate walks the contract and reports every problem found, joined into one error
func Validate(si *ServiceInfo) error {
	if si == nil {
		return errors.New("service: nil service info")
	}
	v := &validator{}
	Walk(si, v)
	return errors.Join(v.errs...)
}
