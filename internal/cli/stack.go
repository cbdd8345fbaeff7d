package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	relay "github.com/glimte/relay-go"

	"github.com/glimte/relay-go/binding"
	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/config"
	"github.com/glimte/relay-go/endpoint"
	"github.com/glimte/relay-go/health"
	"github.com/glimte/relay-go/internal/demo"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/metrics"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport/amqp"
	"github.com/glimte/relay-go/transport/nats"
)

// stack is a bus with its transport connected
type stack struct {
	bus      *bus.Bus
	registry *prometheus.Registry
	health   *health.Registry
}

// newStack builds a bus for the configured transport. Broker transports are
// connected before it returns and closed by bus shutdown.
func (a *app) newStack(ctx context.Context) (*stack, error) {
	rt := &stack{
		registry: prometheus.NewRegistry(),
		health:   health.NewRegistry(0, a.logger),
	}
	collector := metrics.NewCollector(a.cfg.Metrics.Namespace)
	if err := collector.Register(rt.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []bus.Option{
		bus.WithLogger(a.logger),
		bus.WithPhases(a.cfg.PhaseOptions()...),
		bus.WithMetrics(collector),
	}

	var closers []func() error
	switch a.cfg.Transport.Kind {
	case config.TransportAMQP:
		tr, err := amqp.NewTransport(a.cfg.Transport.AMQPURL, amqp.WithTransportLogger(a.logger))
		if err != nil {
			return nil, err
		}
		if err := tr.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", amqp.SanitizeURL(a.cfg.Transport.AMQPURL), err)
		}
		opts = append(opts, bus.WithTransports(tr))
		closers = append(closers, tr.Close)
		rt.health.Register(health.NewConnectionChecker(amqp.TransportID, tr))
	case config.TransportNATS:
		tr := nats.NewTransport(a.cfg.Transport.NATSURL, nats.WithLogger(a.logger))
		if err := tr.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", a.cfg.Transport.NATSURL, err)
		}
		opts = append(opts, bus.WithTransports(tr))
		closers = append(closers, tr.Close)
		rt.health.Register(health.NewConnectionChecker(nats.TransportID, tr))
	}

	b, err := bus.New(opts...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	for _, c := range closers {
		c := c
		b.OnShutdown(func(context.Context) error { return c() })
	}
	rt.bus = b
	return rt, nil
}

// contract builds the inventory contract with an endpoint on the configured
// transport. Part types are registered on the bus.
func (a *app) contract(b *bus.Bus) (*service.ServiceInfo, error) {
	si, _, err := invoker.BuildService(demo.ServiceName, demo.Namespace, demo.NewInventory(a.logger), b.Types(), demo.BuildOptions()...)
	if err != nil {
		return nil, err
	}
	si.AddEndpoint(demo.ServiceName, a.cfg.Transport.Kind, a.cfg.Transport.Address,
		si.AddBinding(demo.ServiceName+"-"+binding.JSONBindingID, binding.JSONBindingID))
	return si, nil
}

// publish serves a fresh inventory on the configured transport and address
func (a *app) publish(ctx context.Context, b *bus.Bus) (*endpoint.Server, error) {
	return relay.Publish(ctx, b, demo.NewInventory(a.logger),
		relay.WithServiceName(demo.ServiceName, demo.Namespace),
		relay.WithAddress(a.cfg.Transport.Kind, a.cfg.Transport.Address),
		relay.WithBuildOptions(demo.BuildOptions()...),
		relay.WithServerOptions(a.cfg.ServerOptions()...),
	)
}

type transportFlags struct {
	kind    string
	address string
}

func (f *transportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "transport", "t", "", "transport: local, amqp or nats (overrides config)")
	cmd.Flags().StringVarP(&f.address, "address", "a", "", "queue or subject of the service (overrides config)")
}

func (f *transportFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("transport") {
		cfg.Transport.Kind = f.kind
	}
	if cmd.Flags().Changed("address") {
		cfg.Transport.Address = f.address
	}
	return cfg.Validate()
}
