package endpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/relay-go/binding"
	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
	"github.com/glimte/relay-go/transport/local"
)

type QuoteRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int    `json:"quantity"`
}

type Quote struct {
	Symbol string `json:"symbol"`
	Price  int    `json:"price"`
}

type TradeEvent struct {
	Symbol string `json:"symbol"`
}

type UnknownSymbol struct {
	Symbol string `json:"symbol"`
}

func (e *UnknownSymbol) Error() string     { return "unknown symbol " + e.Symbol }
func (e *UnknownSymbol) FaultName() string { return "unknownSymbol" }

type desk struct {
	prices  map[string]int
	trades  chan *TradeEvent
	callers chan string
}

func newDesk() *desk {
	return &desk{
		prices:  map[string]int{"ACME": 12},
		trades:  make(chan *TradeEvent, 8),
		callers: make(chan string, 8),
	}
}

func (d *desk) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	if p, ok := interceptors.PrincipalFromContext(ctx); ok {
		select {
		case d.callers <- p.Name:
		default:
		}
	}
	switch req.Symbol {
	case "SLOW":
		time.Sleep(300 * time.Millisecond)
	case "BROKEN":
		return nil, errors.New("pricing engine offline")
	}
	price, ok := d.prices[req.Symbol]
	if !ok {
		return nil, &UnknownSymbol{Symbol: req.Symbol}
	}
	return &Quote{Symbol: req.Symbol, Price: price * req.Quantity}, nil
}

func (d *desk) Record(ctx context.Context, ev *TradeEvent) error {
	d.trades <- ev
	return nil
}

type countingCollector struct {
	mu       sync.Mutex
	messages int
	errors   map[string]int
}

func (c *countingCollector) IncrementMessageCount(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages++
}

func (c *countingCollector) RecordProcessingTime(string, time.Duration) {}

func (c *countingCollector) IncrementErrorCount(operation, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errors == nil {
		c.errors = make(map[string]int)
	}
	c.errors[code]++
}

func (c *countingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

type fixture struct {
	bus    *bus.Bus
	desk   *desk
	info   *service.EndpointInfo
	server *Server
	client *Client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, busOpts []bus.Option, serverOpts ...ServerOption) *fixture {
	t.Helper()
	ctx := context.Background()

	b, err := bus.New(append([]bus.Option{bus.WithLogger(quietLogger())}, busOpts...)...)
	require.NoError(t, err)

	d := newDesk()
	si, dispatcher, err := invoker.BuildService("quotes", "urn:quotes", d, b.Types(),
		invoker.WithFault("GetQuote", "unknownSymbol", UnknownSymbol{}))
	require.NoError(t, err)
	info := si.AddEndpoint("quotes", local.TransportID, "quotes", si.AddBinding("quotes-json", binding.JSONBindingID))

	serverEp, err := New(b, info)
	require.NoError(t, err)
	server, err := NewServer(serverEp, invoker.NewBeanInvoker(invoker.NewSingletonFactory(d), dispatcher, nil), serverOpts...)
	require.NoError(t, err)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	clientEp, err := New(b, info)
	require.NoError(t, err)
	client, err := NewClient(ctx, clientEp, WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return &fixture{bus: b, desk: d, info: info, server: server, client: client}
}

func TestInvoke(t *testing.T) {
	for name, opts := range map[string][]ServerOption{
		"inline":       nil,
		"workers":      {WithWorkers(4)},
		"async invoke": {WithWorkers(4), WithAsyncInvoke(true)},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil, opts...)
			ctx := context.Background()

			t.Run("response", func(t *testing.T) {
				result, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "ACME", Quantity: 3})
				require.NoError(t, err)
				require.Len(t, result, 1)
				assert.Equal(t, &Quote{Symbol: "ACME", Price: 36}, result[0])
				assert.Zero(t, f.client.Pending())
			})

			t.Run("declared fault", func(t *testing.T) {
				_, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "NOPE"})

				var fault *contracts.Fault
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, contracts.FaultServer, fault.Code)
				assert.Equal(t, "unknownSymbol", fault.Name)
				assert.Equal(t, &UnknownSymbol{Symbol: "NOPE"}, fault.Detail)
			})

			t.Run("undeclared error", func(t *testing.T) {
				_, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "BROKEN"})

				var fault *contracts.Fault
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, contracts.FaultServer, fault.Code)
				assert.Empty(t, fault.Name)
				assert.Contains(t, fault.Reason, "pricing engine offline")
			})

			t.Run("one-way", func(t *testing.T) {
				result, err := f.client.Invoke(ctx, "Record", &TradeEvent{Symbol: "ACME"})
				require.NoError(t, err)
				assert.Empty(t, result)

				select {
				case ev := <-f.desk.trades:
					assert.Equal(t, "ACME", ev.Symbol)
				case <-time.After(2 * time.Second):
					t.Fatal("one-way request never reached the bean")
				}
			})
		})
	}
}

func TestInvokeAsync(t *testing.T) {
	f := newFixture(t, nil)

	results := make(chan contracts.Parts, 1)
	err := f.client.InvokeAsync(context.Background(), "GetQuote", func(result contracts.Parts, err error) {
		assert.NoError(t, err)
		results <- result
	}, &QuoteRequest{Symbol: "ACME", Quantity: 1})
	require.NoError(t, err)

	select {
	case result := <-results:
		assert.Equal(t, &Quote{Symbol: "ACME", Price: 12}, result[0])
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestClientErrors(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("unknown operation", func(t *testing.T) {
		_, err := f.client.Invoke(context.Background(), "Sell", &QuoteRequest{})
		assert.ErrorIs(t, err, contracts.ErrUnknownOperation)
		assert.True(t, contracts.IsFault(err, contracts.FaultClient))
	})

	t.Run("context deadline becomes a timeout fault", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "SLOW"})
		assert.True(t, contracts.IsFault(err, contracts.FaultTimeout))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, f.client.Pending())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "ACME"})
		assert.True(t, contracts.IsFault(err, contracts.FaultTimeout))
	})

	t.Run("close fails pending calls", func(t *testing.T) {
		client, err := NewClient(context.Background(), mustEndpoint(t, f))
		require.NoError(t, err)

		errs := make(chan error, 1)
		require.NoError(t, client.InvokeAsync(context.Background(), "GetQuote", func(_ contracts.Parts, err error) {
			errs <- err
		}, &QuoteRequest{Symbol: "SLOW"}))

		require.NoError(t, client.Close(context.Background()))
		assert.True(t, contracts.IsFault(<-errs, contracts.FaultUnavailable))

		_, err = client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "ACME"})
		assert.ErrorIs(t, err, ErrClientClosed)
	})
}

func mustEndpoint(t *testing.T, f *fixture) *Endpoint {
	t.Helper()
	ep, err := New(f.bus, f.info)
	require.NoError(t, err)
	return ep
}

func TestServerFaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// a raw conduit lets the request name an operation the client would refuse
	conduit, err := f.bus.Transports().Conduit(ctx, f.info)
	require.NoError(t, err)
	defer conduit.Shutdown(ctx)

	replies := make(chan *contracts.Message, 1)
	conduit.SetMessageObserver(transport.MessageObserverFunc(func(ctx context.Context, msg *contracts.Message) {
		replies <- msg
	}))

	send := func(t *testing.T, payload string) *contracts.Envelope {
		t.Helper()
		ex := contracts.NewExchange()
		out := contracts.NewMessage(contracts.Outbound)
		out.SetRequestor(true)
		out.Put(contracts.PropCorrelationID, "c-raw")
		ex.SetOutMessage(out)

		require.NoError(t, conduit.Prepare(ctx, out))
		buf, _ := contracts.Content[*bytes.Buffer](out)
		buf.WriteString(payload)
		require.NoError(t, conduit.Close(ctx, out))

		select {
		case reply := <-replies:
			assert.Equal(t, "c-raw", reply.CorrelationID())
			payload, ok := contracts.Content[[]byte](reply)
			require.True(t, ok)
			env, err := binding.DecodeEnvelope(payload)
			require.NoError(t, err)
			return env
		case <-time.After(2 * time.Second):
			t.Fatal("no reply")
			return nil
		}
	}

	t.Run("unknown operation", func(t *testing.T) {
		env := send(t, `{"id":"m-1","operation":"Sell","correlationId":"c-raw","body":{}}`)
		require.True(t, env.IsFault())
		assert.Equal(t, contracts.FaultClient, env.Fault.Code)
		assert.Contains(t, env.Fault.Reason, "Sell")
	})

	t.Run("malformed envelope", func(t *testing.T) {
		env := send(t, `{"id":`)
		require.True(t, env.IsFault())
		assert.Equal(t, contracts.FaultClient, env.Fault.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := send(t, `{"id":"m-2","operation":"GetQuote","correlationId":"c-raw","body":{"quantity":"many"}}`)
		require.True(t, env.IsFault())
		assert.Equal(t, contracts.FaultClient, env.Fault.Code)
	})
}

func TestServerLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.server.Start(context.Background()), ErrServerStarted)
	require.NoError(t, f.server.Stop(context.Background()))
	assert.ErrorIs(t, f.server.Stop(context.Background()), ErrServerNotStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := f.client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "ACME"})
	assert.True(t, contracts.IsFault(err, contracts.FaultTransport), "got %v", err)

	require.NoError(t, f.server.Start(context.Background()))
	result, err := f.client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "ACME", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, &Quote{Symbol: "ACME", Price: 12}, result[0])
}

func TestInvokeTimeout(t *testing.T) {
	f := newFixture(t, nil, WithWorkers(2), WithAsyncInvoke(true), WithInvokeTimeout(50*time.Millisecond))

	_, err := f.client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "SLOW"})
	assert.True(t, contracts.IsFault(err, contracts.FaultTimeout), "got %v", err)
}

func TestMetricsCountEachExchangeOnce(t *testing.T) {
	collector := &countingCollector{}
	f := newFixture(t, []bus.Option{bus.WithMetrics(collector)})

	_, err := f.client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "ACME", Quantity: 1})
	require.NoError(t, err)

	// one client exchange and one server exchange
	assert.Eventually(t, func() bool { return collector.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return collector.count() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t, nil)
	tmpl := f.server.Templates()

	assert.Contains(t, tmpl.In.String(), "read: "+binding.EnvelopeInID)
	assert.Contains(t, tmpl.In.String(), "invoke: "+invoker.ServiceInvokerID)
	assert.Contains(t, tmpl.In.String(), "post-invoke: "+OutgoingChainID)
	assert.Contains(t, tmpl.Out.String(), "prepare-send: "+transport.MessageSenderID)
	assert.Contains(t, tmpl.OutFault.String(), binding.FaultOutID)
}

// rawReplies sends payload through a bare conduit and collects every reply
// that arrives within wait
func rawReplies(t *testing.T, f *fixture, correlationID, payload string, wait time.Duration) []*contracts.Envelope {
	t.Helper()
	ctx := context.Background()

	conduit, err := f.bus.Transports().Conduit(ctx, f.info)
	require.NoError(t, err)
	defer conduit.Shutdown(ctx)

	replies := make(chan *contracts.Message, 4)
	conduit.SetMessageObserver(transport.MessageObserverFunc(func(ctx context.Context, msg *contracts.Message) {
		replies <- msg
	}))

	ex := contracts.NewExchange()
	out := contracts.NewMessage(contracts.Outbound)
	out.SetRequestor(true)
	out.Put(contracts.PropCorrelationID, correlationID)
	ex.SetOutMessage(out)
	require.NoError(t, conduit.Prepare(ctx, out))
	buf, _ := contracts.Content[*bytes.Buffer](out)
	buf.WriteString(payload)
	require.NoError(t, conduit.Close(ctx, out))

	var envs []*contracts.Envelope
	deadline := time.After(wait)
	for {
		select {
		case reply := <-replies:
			body, ok := contracts.Content[[]byte](reply)
			require.True(t, ok)
			env, err := binding.DecodeEnvelope(body)
			require.NoError(t, err)
			envs = append(envs, env)
		case <-deadline:
			return envs
		}
	}
}

func TestTimeoutAfterResponseStarted(t *testing.T) {
	slowSetup := interceptors.NewInterceptorFunc("slow-setup", phase.Setup,
		func(ctx context.Context, msg *contracts.Message) error {
			time.Sleep(150 * time.Millisecond)
			return nil
		})
	f := newFixture(t, nil, WithInvokeTimeout(50*time.Millisecond), WithOutInterceptors(slowSetup))

	envs := rawReplies(t, f, "c-late",
		`{"id":"m-9","operation":"GetQuote","correlationId":"c-late","body":{"symbol":"ACME","quantity":1}}`,
		500*time.Millisecond)

	require.Len(t, envs, 1, "the exchange must be answered once")
	assert.False(t, envs[0].IsFault(), "got fault %+v", envs[0].Fault)
	assert.Equal(t, "c-late", envs[0].CorrelationID)
	assert.JSONEq(t, `{"symbol":"ACME","price":12}`, string(envs[0].Body))
}

func TestOutFaultInitiatorSkipsAnsweredExchange(t *testing.T) {
	f := newFixture(t, nil)
	initiator := NewOutFaultChainInitiator(f.server.Templates().OutFault, quietLogger())

	ex := contracts.NewExchange()
	in := contracts.NewMessage(contracts.Inbound)
	ex.SetInMessage(in)
	require.True(t, ex.MarkDispatched())

	in.SetFault(contracts.NewFault(contracts.FaultTimeout, "late"))
	initiator.OnFault(context.Background(), in)

	assert.Nil(t, ex.OutFaultMessage())
	assert.True(t, ex.IsComplete())
}

func TestPrincipalReachesBean(t *testing.T) {
	auth := interceptors.NewAuthenticationInterceptor(interceptors.AuthenticatorFunc(
		func(ctx context.Context, msg *contracts.Message) (*interceptors.Principal, error) {
			return &interceptors.Principal{Name: "trader"}, nil
		}))

	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async %v", async), func(t *testing.T) {
			f := newFixture(t, nil, WithWorkers(2), WithAsyncInvoke(async), WithInInterceptors(auth))

			_, err := f.client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "ACME", Quantity: 1})
			require.NoError(t, err)

			select {
			case name := <-f.desk.callers:
				assert.Equal(t, "trader", name)
			case <-time.After(time.Second):
				t.Fatal("principal was not bound into the invocation context")
			}
		})
	}
}

type deskKey struct{}

func TestServerContextBinders(t *testing.T) {
	seen := make(chan interface{}, 1)
	binder := interceptors.ContextBinderFunc(func(ctx context.Context, msg *contracts.Message) context.Context {
		return context.WithValue(ctx, deskKey{}, "floor-1")
	})
	check := interceptors.NewInterceptorFunc("desk-check", phase.UserLogical,
		func(ctx context.Context, msg *contracts.Message) error {
			seen <- ctx.Value(deskKey{})
			return nil
		})
	f := newFixture(t, nil, WithContextBinders(binder), WithOutInterceptors(check))

	_, err := f.client.Invoke(context.Background(), "GetQuote", &QuoteRequest{Symbol: "ACME", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "floor-1", <-seen)
}

func TestClientCancellationFault(t *testing.T) {
	f := newFixture(t, nil, WithWorkers(2))

	exchanges := make(chan *contracts.Exchange, 1)
	capture := interceptors.NewInterceptorFunc("capture", phase.Setup,
		func(ctx context.Context, msg *contracts.Message) error {
			exchanges <- msg.Exchange()
			return nil
		})
	ep, err := New(f.bus, f.info)
	require.NoError(t, err)
	client, err := NewClient(context.Background(), ep, WithRequestInterceptors(capture))
	require.NoError(t, err)
	defer client.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "SLOW"})
	require.True(t, contracts.IsFault(err, contracts.FaultTimeout), "got %v", err)

	ex := <-exchanges
	assert.True(t, ex.IsComplete())
	require.NotNil(t, ex.InFaultMessage())
	assert.Equal(t, contracts.FaultTimeout, ex.InFaultMessage().Fault().Code)
	assert.Nil(t, ex.OutMessage().Fault())
	assert.Equal(t, contracts.FaultTimeout, ex.Fault().Code)
}
