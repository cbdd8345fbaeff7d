package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingVisitor records every callback it receives
type countingVisitor struct {
	BaseVisitor
	events   []string
	messages map[*MessageInfo]int
	parts    map[*MessagePartInfo]int
}

func newCountingVisitor() *countingVisitor {
	return &countingVisitor{
		messages: make(map[*MessageInfo]int),
		parts:    make(map[*MessagePartInfo]int),
	}
}

func (v *countingVisitor) log(format string, args ...interface{}) {
	v.events = append(v.events, fmt.Sprintf(format, args...))
}

func (v *countingVisitor) BeginService(si *ServiceInfo)     { v.log("service %s", si.Name) }
func (v *countingVisitor) EndService(si *ServiceInfo)       { v.log("/service") }
func (v *countingVisitor) BeginInterface(ii *InterfaceInfo) { v.log("interface %s", ii.Name) }
func (v *countingVisitor) BeginOperation(op *OperationInfo) { v.log("operation %s", op.Name) }
func (v *countingVisitor) EndOperation(op *OperationInfo)   { v.log("/operation %s", op.Name) }

func (v *countingVisitor) BeginInput(_ *OperationInfo, mi *MessageInfo) {
	v.messages[mi]++
	v.log("input %s", mi.Name)
}

func (v *countingVisitor) EndInput(_ *OperationInfo, mi *MessageInfo) {
	v.messages[mi]++
}

func (v *countingVisitor) BeginOutput(_ *OperationInfo, mi *MessageInfo) {
	v.messages[mi]++
	v.log("output %s", mi.Name)
}

func (v *countingVisitor) EndOutput(_ *OperationInfo, mi *MessageInfo) {
	v.messages[mi]++
}

func (v *countingVisitor) BeginFault(_ *OperationInfo, fi *FaultInfo) { v.log("fault %s", fi.Name) }

func (v *countingVisitor) BeginMessagePart(p *MessagePartInfo) {
	v.parts[p]++
	v.log("part %s", p.Name)
}

func (v *countingVisitor) BeginUnwrappedOperation(op *OperationInfo) { v.log("unwrapped %s", op.Name) }
func (v *countingVisitor) BeginEndpoint(ep *EndpointInfo)            { v.log("endpoint %s", ep.Name) }
func (v *countingVisitor) BeginBinding(b *BindingInfo)               { v.log("binding %s", b.Name) }

func (v *countingVisitor) BeginBindingOperation(bop *BindingOperationInfo) {
	v.log("binding-operation %s", bop.Name)
}

func orderService(t *testing.T) *ServiceInfo {
	t.Helper()

	si := NewServiceInfo("orders", "urn:relay:test", "1.2.0")
	op, err := si.Interface.AddOperation("place")
	require.NoError(t, err)
	op.SetInput("placeRequest").AddPart("order", "Order")
	op.SetOutput("placeResponse").AddPart("receipt", "Receipt")
	op.AddFault("rejected", "rejectedFault").Message.AddPart("reason", "Rejection")
	op.NewUnwrapped()

	notify, err := si.Interface.AddOperation("notify")
	require.NoError(t, err)
	notify.SetInput("notifyRequest").AddPart("event", "Event")

	b := si.AddBinding("orders-json", "json")
	si.AddEndpoint("orders-local", "local", "orders", b)
	return si
}

func TestWalkOrder(t *testing.T) {
	v := newCountingVisitor()
	Walk(orderService(t), v)

	assert.Equal(t, []string{
		"service orders",
		"interface orders",
		"operation place",
		"input placeRequest",
		"part order",
		"output placeResponse",
		"part receipt",
		"fault rejected",
		"part reason",
		"unwrapped place",
		"/operation place",
		"operation notify",
		"input notifyRequest",
		"part event",
		"/operation notify",
		"endpoint orders-local",
		"binding orders-json",
		"binding-operation place",
		"binding-operation notify",
		"/service",
	}, v.events)
}

func TestWalkVisitsSharedMessagesOnce(t *testing.T) {
	si := orderService(t)
	op, ok := si.Interface.Operation("place")
	require.True(t, ok)
	require.NotNil(t, op.Unwrapped)
	require.Same(t, op.Input, op.Unwrapped.Input)
	require.Same(t, op.Output, op.Unwrapped.Output)

	v := newCountingVisitor()
	Walk(si, v)

	for mi, calls := range v.messages {
		assert.Equal(t, 2, calls, "begin and end once for %s", mi.Name)
	}
	assert.Len(t, v.messages, 3)
	for p, calls := range v.parts {
		assert.Equal(t, 1, calls, "part %s", p.Name)
	}
}

func TestWalkNil(t *testing.T) {
	v := newCountingVisitor()
	Walk(nil, v)
	assert.Empty(t, v.events)
}

func TestDescribe(t *testing.T) {
	desc := Describe(orderService(t))

	require.NotNil(t, desc)
	assert.Equal(t, "orders", desc.Name)
	assert.Equal(t, "1.2.0", desc.Version)
	require.Len(t, desc.Operations, 2)

	place := desc.Operations[0]
	assert.Equal(t, "place", place.Name)
	assert.False(t, place.OneWay)
	assert.Equal(t, []string{"order: Order"}, place.Input)
	assert.Equal(t, []string{"receipt: Receipt"}, place.Output)
	assert.Equal(t, []string{"rejected"}, place.Faults)

	assert.True(t, desc.Operations[1].OneWay)
	assert.Equal(t, []EndpointDescription{
		{Name: "orders-local", Transport: "local", Address: "orders", Binding: "orders-json"},
	}, desc.Endpoints)
	assert.Equal(t, []string{"place", "notify"}, desc.Bindings[0].Operations)
}
