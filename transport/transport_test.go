package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/internal/reliability"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
)

type mockConduit struct {
	mock.Mock
}

func (m *mockConduit) Target() string { return "mock://target" }

func (m *mockConduit) Prepare(ctx context.Context, msg *contracts.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockConduit) Close(ctx context.Context, msg *contracts.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockConduit) SetMessageObserver(observer MessageObserver) {}

func (m *mockConduit) Shutdown(ctx context.Context) error { return nil }

type mockFactory struct {
	id string
}

func (f *mockFactory) TransportID() string { return f.id }

func (f *mockFactory) Destination(ctx context.Context, ep *service.EndpointInfo) (Destination, error) {
	return nil, errors.New("destination " + ep.Address)
}

func (f *mockFactory) Conduit(ctx context.Context, ep *service.EndpointInfo) (Conduit, error) {
	return &mockConduit{}, nil
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(&mockFactory{id: "mock"})
	reg.RegisterConduitFactory(&mockFactory{id: "outbound-only"})

	assert.Equal(t, []string{"mock", "outbound-only"}, reg.TransportIDs())

	c, err := reg.Conduit(ctx, &service.EndpointInfo{TransportID: "mock"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = reg.Destination(ctx, &service.EndpointInfo{TransportID: "mock", Address: "a"})
	assert.EqualError(t, err, "destination a")

	_, err = reg.Destination(ctx, &service.EndpointInfo{TransportID: "outbound-only"})
	assert.ErrorIs(t, err, ErrUnknownTransport)

	_, err = reg.Conduit(ctx, &service.EndpointInfo{TransportID: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestNewInbound(t *testing.T) {
	msg := NewInbound([]byte("{}"), "c-1", "reply", map[string]string{"tenant": "acme"})

	payload, ok := contracts.Content[[]byte](msg)
	require.True(t, ok)
	assert.Equal(t, "{}", string(payload))
	assert.Equal(t, contracts.Inbound, msg.Direction)
	assert.Equal(t, "c-1", msg.CorrelationID())
	assert.Equal(t, "reply", msg.GetString(contracts.PropReplyTo))
	assert.Equal(t, "acme", msg.Header("tenant"))

	bare := NewInbound(nil, "", "", nil)
	_, has := bare.Get(contracts.PropReplyTo)
	assert.False(t, has)
}

func senderChain(t *testing.T, sender *MessageSenderInterceptor, order *[]string) *interceptors.PhaseInterceptorChain {
	t.Helper()
	chain := interceptors.NewPhaseInterceptorChain(phase.MustNewRegistry().Phases(contracts.Outbound),
		interceptors.WithFaultObserver(interceptors.FaultObserverFunc(func(context.Context, *contracts.Message) {})))
	writer := interceptors.NewInterceptorFunc("writer", phase.Write, func(ctx context.Context, msg *contracts.Message) error {
		*order = append(*order, "write")
		buf, ok := contracts.Content[*bytes.Buffer](msg)
		require.True(t, ok)
		buf.WriteString(`{"ok":true}`)
		return nil
	})
	require.NoError(t, chain.Add(sender, writer))
	return chain
}

func outbound(conduit Conduit) *contracts.Message {
	ex := contracts.NewExchange()
	if conduit != nil {
		contracts.Attach[Conduit](ex, conduit)
	}
	msg := contracts.NewMessage(contracts.Outbound)
	ex.SetOutMessage(msg)
	return msg
}

func TestMessageSenderInterceptor(t *testing.T) {
	ctx := context.Background()

	t.Run("prepares before write and sends after", func(t *testing.T) {
		var order []string
		conduit := &mockConduit{}
		conduit.On("Prepare", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			order = append(order, "prepare")
			PrepareBuffer(args.Get(1).(*contracts.Message))
		}).Return(nil)
		conduit.On("Close", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			order = append(order, "send")
			payload, ok := Payload(args.Get(1).(*contracts.Message))
			require.True(t, ok)
			assert.JSONEq(t, `{"ok":true}`, string(payload))
		}).Return(nil)

		msg := outbound(conduit)
		outcome := senderChain(t, NewMessageSenderInterceptor(nil, nil), &order).DoIntercept(ctx, msg)

		assert.Equal(t, interceptors.OutcomeComplete, outcome)
		assert.Equal(t, []string{"prepare", "write", "send"}, order)
		conduit.AssertExpectations(t)
	})

	t.Run("retries failed sends", func(t *testing.T) {
		var order []string
		conduit := &mockConduit{}
		conduit.On("Prepare", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			PrepareBuffer(args.Get(1).(*contracts.Message))
		}).Return(nil)
		conduit.On("Close", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Twice()
		conduit.On("Close", mock.Anything, mock.Anything).Return(nil).Once()

		sender := NewMessageSenderInterceptor(reliability.NewFixedDelay(time.Millisecond, 3), nil)
		outcome := senderChain(t, sender, &order).DoIntercept(ctx, outbound(conduit))

		assert.Equal(t, interceptors.OutcomeComplete, outcome)
		conduit.AssertNumberOfCalls(t, "Close", 3)
	})

	t.Run("send failure is a transport fault", func(t *testing.T) {
		var order []string
		conduit := &mockConduit{}
		conduit.On("Prepare", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			PrepareBuffer(args.Get(1).(*contracts.Message))
		}).Return(nil)
		conduit.On("Close", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

		msg := outbound(conduit)
		outcome := senderChain(t, NewMessageSenderInterceptor(nil, nil), &order).DoIntercept(ctx, msg)

		assert.Equal(t, interceptors.OutcomeFault, outcome)
		require.NotNil(t, msg.Fault())
		assert.Equal(t, contracts.FaultTransport, msg.Fault().Code)
		assert.Contains(t, msg.Fault().Reason, "mock://target")
	})

	t.Run("prepare failure stops before write", func(t *testing.T) {
		var order []string
		conduit := &mockConduit{}
		conduit.On("Prepare", mock.Anything, mock.Anything).Return(errors.New("closed"))

		msg := outbound(conduit)
		outcome := senderChain(t, NewMessageSenderInterceptor(nil, nil), &order).DoIntercept(ctx, msg)

		assert.Equal(t, interceptors.OutcomeFault, outcome)
		assert.Empty(t, order)
		conduit.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
	})

	t.Run("no conduit", func(t *testing.T) {
		var order []string
		msg := outbound(nil)
		outcome := senderChain(t, NewMessageSenderInterceptor(nil, nil), &order).DoIntercept(ctx, msg)

		assert.Equal(t, interceptors.OutcomeFault, outcome)
		assert.Equal(t, contracts.FaultServer, msg.Fault().Code)
	})
}
