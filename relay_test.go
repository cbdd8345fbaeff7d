package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/endpoint"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/service"
)

type GreetRequest struct {
	Name string `json:"name"`
}

type Greeting struct {
	Text string `json:"text"`
}

type Greeter struct{}

func (Greeter) Greet(ctx context.Context, req *GreetRequest) (*Greeting, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	return &Greeting{Text: "hello " + req.Name}, nil
}

func newBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func TestPublishAndConnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("round trip with defaults", func(t *testing.T) {
		b := newBus(t)
		server, err := Publish(ctx, b, &Greeter{})
		require.NoError(t, err)

		si := server.Endpoint().Service()
		assert.Equal(t, "greeter", si.Name)
		assert.Equal(t, "urn:greeter", si.Namespace)

		client, err := Connect(ctx, b, si)
		require.NoError(t, err)

		result, err := client.Invoke(ctx, "Greet", &GreetRequest{Name: "ada"})
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, "hello ada", result[0].(*Greeting).Text)
	})

	t.Run("bean errors arrive as server faults", func(t *testing.T) {
		b := newBus(t)
		_, err := Publish(ctx, b, Greeter{}, WithServiceName("greetings", "urn:test"))
		require.NoError(t, err)

		client, err := Lookup(ctx, b, "greetings", "")
		require.NoError(t, err)

		_, err = client.Invoke(ctx, "Greet", &GreetRequest{})
		var fault *contracts.Fault
		require.True(t, errors.As(err, &fault))
		assert.Equal(t, contracts.FaultServer, fault.Code)
		assert.Contains(t, fault.Error(), "name is required")
	})

	t.Run("lookup honours version constraints", func(t *testing.T) {
		b := newBus(t)
		_, err := Publish(ctx, b, Greeter{}, WithBuildOptions(invoker.WithVersion("1.4.0")))
		require.NoError(t, err)

		_, err = Lookup(ctx, b, "greeter", "^1.2")
		require.NoError(t, err)

		_, err = Lookup(ctx, b, "greeter", "^2")
		assert.ErrorIs(t, err, service.ErrNotPublished)
	})

	t.Run("duplicate publish is rejected", func(t *testing.T) {
		b := newBus(t)
		_, err := Publish(ctx, b, Greeter{})
		require.NoError(t, err)

		_, err = Publish(ctx, b, Greeter{}, WithAddress("local", "greeter-2"))
		var cfgErr *contracts.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("server and client options are passed through", func(t *testing.T) {
		b := newBus(t)
		server, err := Publish(ctx, b, Greeter{},
			WithServerOptions(endpoint.WithWorkers(2), endpoint.WithAsyncInvoke(true)))
		require.NoError(t, err)

		client, err := Connect(ctx, b, server.Endpoint().Service(),
			WithEndpoint("greeter"),
			WithClientOptions(endpoint.WithTimeout(time.Second)))
		require.NoError(t, err)

		result, err := client.Invoke(ctx, "Greet", &GreetRequest{Name: "grace"})
		require.NoError(t, err)
		assert.Equal(t, "hello grace", result[0].(*Greeting).Text)
	})
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()
	b := newBus(t)

	t.Run("nil service", func(t *testing.T) {
		_, err := Connect(ctx, b, nil)
		assert.Error(t, err)
	})

	t.Run("no endpoints", func(t *testing.T) {
		_, err := Connect(ctx, b, service.NewServiceInfo("bare", "urn:bare", "1.0.0"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no endpoints")
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		server, err := Publish(ctx, b, Greeter{})
		require.NoError(t, err)

		_, err = Connect(ctx, b, server.Endpoint().Service(), WithEndpoint("missing"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"missing"`)
	})
}

func TestShutdownStopsServers(t *testing.T) {
	ctx := context.Background()
	b, err := bus.New(bus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	server, err := Publish(ctx, b, Greeter{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Services().Len())

	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, 0, b.Services().Len())
	assert.ErrorIs(t, server.Stop(ctx), endpoint.ErrServerNotStarted)
}

func TestBeanName(t *testing.T) {
	assert.Equal(t, "greeter", beanName(&Greeter{}))
	assert.Equal(t, "greeter", beanName(Greeter{}))
	assert.True(t, strings.HasPrefix(beanName(struct{}{}), "service"))
}
