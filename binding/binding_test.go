package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
)

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int    `json:"amount"`
}

type transferResult struct {
	Reference string `json:"reference"`
}

type insufficientFunds struct {
	Balance int `json:"balance"`
}

type fixture struct {
	types   *databinding.TypeRegistry
	info    *service.BindingInfo
	binding Binding
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	types := databinding.NewTypeRegistry()
	require.NoError(t, types.Register("TransferRequest", transferRequest{}))
	require.NoError(t, types.Register("TransferResult", transferResult{}))
	require.NoError(t, types.Register("InsufficientFunds", insufficientFunds{}))

	si := service.NewServiceInfo("bank", "", "1.0.0")
	op, err := si.Interface.AddOperation("transfer")
	require.NoError(t, err)
	op.SetInput("transferRequest").AddPart("request", "TransferRequest")
	op.SetOutput("transferResponse").AddPart("response", "TransferResult")
	op.AddFault("insufficientFunds", "insufficientFundsFault").Message.AddPart("detail", "InsufficientFunds")

	notify, err := si.Interface.AddOperation("notify")
	require.NoError(t, err)
	notify.SetInput("notifyRequest")

	info := si.AddBinding("bank-json", JSONBindingID)
	b, err := NewRegistry(NewJSONBindingFactory(types, nil)).Create(info)
	require.NoError(t, err)
	return &fixture{types: types, info: info, binding: b}
}

func (f *fixture) chain(t *testing.T, kind interceptors.ChainKind, direction contracts.Direction, extra ...interceptors.PhaseInterceptor) *interceptors.PhaseInterceptorChain {
	t.Helper()
	chain := interceptors.NewPhaseInterceptorChain(phase.MustNewRegistry().Phases(direction))
	require.NoError(t, chain.Add(kind.Select(f.binding)...))
	require.NoError(t, chain.Add(extra...))
	return chain
}

func inbound(t *testing.T, env *contracts.Envelope) *contracts.Message {
	t.Helper()
	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	ex := contracts.NewExchange()
	msg := contracts.NewMessage(contracts.Inbound)
	contracts.SetContent(msg, data)
	ex.SetInMessage(msg)
	return msg
}

func TestInboundRequest(t *testing.T) {
	f := newFixture(t)

	msg := inbound(t, &contracts.Envelope{
		ID:            "msg-1",
		Operation:     "transfer",
		CorrelationID: "corr-1",
		ReplyTo:       "bank.replies",
		Headers:       map[string]string{"tenant": "acme"},
		Body:          json.RawMessage(`{"from":"a","to":"b","amount":5}`),
	})

	chain := f.chain(t, interceptors.InChain, contracts.Inbound, databinding.NewUnmarshalInterceptor(f.types, nil))
	require.Equal(t, interceptors.OutcomeComplete, chain.DoIntercept(context.Background(), msg))

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "transfer", msg.Operation())
	assert.Equal(t, "corr-1", msg.CorrelationID())
	assert.Equal(t, "bank.replies", msg.GetString(contracts.PropReplyTo))
	assert.Equal(t, "acme", msg.Header("tenant"))

	bop, ok := contracts.Attached[*service.BindingOperationInfo](msg.Exchange())
	require.True(t, ok)
	assert.Equal(t, "transfer", bop.Name)
	assert.False(t, msg.Exchange().OneWay())

	parts, ok := contracts.Content[contracts.Parts](msg)
	require.True(t, ok)
	assert.Equal(t, &transferRequest{From: "a", To: "b", Amount: 5}, parts[0])
}

func TestInboundOneWay(t *testing.T) {
	f := newFixture(t)
	msg := inbound(t, &contracts.Envelope{ID: "m", Operation: "notify"})

	chain := f.chain(t, interceptors.InChain, contracts.Inbound)
	require.Equal(t, interceptors.OutcomeComplete, chain.DoIntercept(context.Background(), msg))
	assert.True(t, msg.Exchange().OneWay())
}

func TestInboundErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown operation", func(t *testing.T) {
		msg := inbound(t, &contracts.Envelope{ID: "m", Operation: "withdraw"})
		chain := f.chain(t, interceptors.InChain, contracts.Inbound)

		assert.Equal(t, interceptors.OutcomeFault, chain.DoIntercept(context.Background(), msg))
		assert.True(t, contracts.IsFault(msg.Fault(), contracts.FaultClient))
		assert.ErrorIs(t, msg.Fault(), contracts.ErrUnknownOperation)
	})

	t.Run("garbage payload", func(t *testing.T) {
		ex := contracts.NewExchange()
		msg := contracts.NewMessage(contracts.Inbound)
		contracts.SetContent(msg, []byte("not json"))
		ex.SetInMessage(msg)

		chain := f.chain(t, interceptors.InChain, contracts.Inbound)
		assert.Equal(t, interceptors.OutcomeFault, chain.DoIntercept(context.Background(), msg))
		assert.Equal(t, contracts.FaultClient, msg.Fault().Code)
	})

	t.Run("no payload", func(t *testing.T) {
		ex := contracts.NewExchange()
		msg := contracts.NewMessage(contracts.Inbound)
		ex.SetInMessage(msg)

		chain := f.chain(t, interceptors.InChain, contracts.Inbound)
		assert.Equal(t, interceptors.OutcomeFault, chain.DoIntercept(context.Background(), msg))
	})
}

func TestOutboundResponse(t *testing.T) {
	f := newFixture(t)

	ex := contracts.NewExchange()
	bop, _ := f.info.Operation("transfer")
	contracts.Attach(ex, bop)

	msg := contracts.NewMessage(contracts.Outbound)
	msg.Put(contracts.PropOperation, "transfer")
	msg.Put(contracts.PropCorrelationID, "corr-9")
	msg.SetHeader("tenant", "acme")
	contracts.SetContent(msg, contracts.Parts{&transferResult{Reference: "ref-1"}})
	ex.SetOutMessage(msg)

	chain := f.chain(t, interceptors.OutChain, contracts.Outbound, databinding.NewMarshalInterceptor())
	require.Equal(t, interceptors.OutcomeComplete, chain.DoIntercept(context.Background(), msg))

	buf, ok := contracts.Content[*bytes.Buffer](msg)
	require.True(t, ok)
	env, err := DecodeEnvelope(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, msg.ID, env.ID)
	assert.Equal(t, "transfer", env.Operation)
	assert.Equal(t, "corr-9", env.CorrelationID)
	assert.Equal(t, "acme", env.Headers["tenant"])
	assert.JSONEq(t, `{"reference":"ref-1"}`, string(env.Body))
	assert.False(t, env.IsFault())
	assert.Equal(t, ContentType, msg.GetString(contracts.PropContentType))
}

func TestFaultRoundTrip(t *testing.T) {
	f := newFixture(t)
	bop, _ := f.info.Operation("transfer")

	// provider side writes the fault
	ex := contracts.NewExchange()
	contracts.Attach(ex, bop)
	out := contracts.NewMessage(contracts.Outbound)
	out.Put(contracts.PropOperation, "transfer")
	out.SetFault(&contracts.Fault{
		Code:   contracts.FaultServer,
		Reason: "balance too low",
		Name:   "insufficientFunds",
		Detail: insufficientFunds{Balance: 3},
	})
	ex.SetOutFaultMessage(out)

	chain := f.chain(t, interceptors.OutFaultChain, contracts.Outbound, databinding.NewMarshalInterceptor())
	require.Equal(t, interceptors.OutcomeComplete, chain.DoIntercept(context.Background(), out))
	buf, _ := contracts.Content[*bytes.Buffer](out)

	env, err := DecodeEnvelope(buf.Bytes())
	require.NoError(t, err)
	require.True(t, env.IsFault())
	assert.Empty(t, env.Body)

	// requestor side reads it back
	clientEx := contracts.NewExchange()
	contracts.Attach(clientEx, bop)
	in := contracts.NewMessage(contracts.Inbound)
	in.SetRequestor(true)
	contracts.SetContent(in, buf.Bytes())
	clientEx.SetInMessage(in)

	inChain := f.chain(t, interceptors.InChain, contracts.Inbound, databinding.NewUnmarshalInterceptor(f.types, nil))
	require.Equal(t, interceptors.OutcomeFault, inChain.DoIntercept(context.Background(), in))

	fault := in.Fault()
	require.NotNil(t, fault)
	assert.Equal(t, contracts.FaultServer, fault.Code)
	assert.Equal(t, "insufficientFunds", fault.Name)
	assert.Equal(t, "balance too low", fault.Reason)
	assert.Equal(t, &insufficientFunds{Balance: 3}, fault.Detail)

	_, decoded := contracts.Content[contracts.Parts](in)
	assert.False(t, decoded)
}

func TestFaultInIgnoresProviderSide(t *testing.T) {
	f := newFixture(t)
	msg := inbound(t, &contracts.Envelope{
		ID:        "m",
		Operation: "transfer",
		Fault:     &contracts.FaultEnvelope{Code: contracts.FaultClient, Reason: "odd"},
	})

	chain := f.chain(t, interceptors.InChain, contracts.Inbound)
	assert.Equal(t, interceptors.OutcomeComplete, chain.DoIntercept(context.Background(), msg))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(JSONBindingID)
	assert.ErrorIs(t, err, ErrUnknownBinding)

	r.Register(NewJSONBindingFactory(databinding.NewTypeRegistry(), nil))
	f, err := r.Get(JSONBindingID)
	require.NoError(t, err)
	assert.Equal(t, JSONBindingID, f.BindingID())

	_, err = r.Create(&service.BindingInfo{Name: "x", BindingID: "soap"})
	assert.ErrorIs(t, err, ErrUnknownBinding)

	_, err = f.Create(nil)
	assert.Error(t, err)
}

func TestEnvelopeCodec(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	assert.Error(t, err)
	_, err = EncodeEnvelope(nil)
	assert.Error(t, err)
}
