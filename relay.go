// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package relay publishes Go beans as services and connects clients to them
// over a bus.
package relay

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/glimte/relay-go/binding"
	"github.com/glimte/relay-go/bus"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/endpoint"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport/local"
)

// PublishOption configures Publish
type PublishOption func(*publishConfig)

type publishConfig struct {
	name        string
	namespace   string
	transportID string
	address     string
	bindingID   string
	factory     invoker.Factory
	build       []invoker.BuildOption
	server      []endpoint.ServerOption
}

// WithServiceName sets the service name and namespace. The default name is
// the bean's type name in lower camel case.
func WithServiceName(name, namespace string) PublishOption {
	return func(c *publishConfig) {
		c.name = name
		c.namespace = namespace
	}
}

// WithAddress selects the transport and address the service listens on.
// The default is the local transport at the service name.
func WithAddress(transportID, address string) PublishOption {
	return func(c *publishConfig) {
		c.transportID = transportID
		c.address = address
	}
}

// WithBinding selects the wire binding. The default is JSON.
func WithBinding(bindingID string) PublishOption {
	return func(c *publishConfig) {
		c.bindingID = bindingID
	}
}

// WithFactory replaces the singleton bean factory
func WithFactory(factory invoker.Factory) PublishOption {
	return func(c *publishConfig) {
		c.factory = factory
	}
}

// WithBuildOptions passes options to invoker.BuildService
func WithBuildOptions(opts ...invoker.BuildOption) PublishOption {
	return func(c *publishConfig) {
		c.build = append(c.build, opts...)
	}
}

// WithServerOptions passes options to endpoint.NewServer
func WithServerOptions(opts ...endpoint.ServerOption) PublishOption {
	return func(c *publishConfig) {
		c.server = append(c.server, opts...)
	}
}

// Publish builds a service from the exported methods of bean, registers it
// on the bus and starts a server for it. The server is stopped by
// b.Shutdown.
func Publish(ctx context.Context, b *bus.Bus, bean interface{}, opts ...PublishOption) (*endpoint.Server, error) {
	if bean == nil {
		return nil, contracts.NewConfigurationError("relay", "Publish", "bean is required")
	}
	cfg := &publishConfig{
		name:        beanName(bean),
		transportID: local.TransportID,
		bindingID:   binding.JSONBindingID,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.namespace == "" {
		cfg.namespace = "urn:" + cfg.name
	}
	if cfg.address == "" {
		cfg.address = cfg.name
	}
	if cfg.factory == nil {
		cfg.factory = invoker.NewSingletonFactory(bean)
	}

	si, dispatcher, err := invoker.BuildService(cfg.name, cfg.namespace, bean, b.Types(), cfg.build...)
	if err != nil {
		return nil, err
	}
	info := si.AddEndpoint(cfg.name, cfg.transportID, cfg.address, si.AddBinding(cfg.name+"-"+cfg.bindingID, cfg.bindingID))
	if err := service.Validate(si); err != nil {
		return nil, err
	}

	if err := b.Beans().Register(si.Name, cfg.factory); err != nil {
		return nil, err
	}
	if err := b.Services().Publish(si); err != nil {
		return nil, err
	}

	ep, err := endpoint.New(b, info)
	if err != nil {
		return nil, err
	}
	server, err := endpoint.NewServer(ep, invoker.NewBeanInvoker(cfg.factory, dispatcher, b.Logger()), cfg.server...)
	if err != nil {
		return nil, err
	}
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	b.OnShutdown(func(ctx context.Context) error {
		b.Services().Unpublish(si.Name, si.Version)
		return server.Stop(ctx)
	})

	b.Logger().Info("service published",
		"service", si.QName(),
		"version", si.Version,
		"transport", info.TransportID,
		"address", info.Address,
		"operations", len(si.Interface.Operations()))
	return server, nil
}

// ConnectOption configures Connect
type ConnectOption func(*connectConfig)

type connectConfig struct {
	endpoint string
	client   []endpoint.ClientOption
}

// WithEndpoint selects an endpoint of the service by name. The default is
// the first endpoint.
func WithEndpoint(name string) ConnectOption {
	return func(c *connectConfig) {
		c.endpoint = name
	}
}

// WithClientOptions passes options to endpoint.NewClient
func WithClientOptions(opts ...endpoint.ClientOption) ConnectOption {
	return func(c *connectConfig) {
		c.client = append(c.client, opts...)
	}
}

// Connect creates a client for a service contract. The client is closed by
// b.Shutdown.
func Connect(ctx context.Context, b *bus.Bus, si *service.ServiceInfo, opts ...ConnectOption) (*endpoint.Client, error) {
	if si == nil {
		return nil, contracts.NewConfigurationError("relay", "Connect", "service is required")
	}
	cfg := &connectConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var info *service.EndpointInfo
	if cfg.endpoint == "" {
		if len(si.Endpoints) == 0 {
			return nil, contracts.NewConfigurationError("relay", "Connect",
				fmt.Sprintf("service %s has no endpoints", si.QName()))
		}
		info = si.Endpoints[0]
	} else {
		var ok bool
		if info, ok = si.Endpoint(cfg.endpoint); !ok {
			return nil, contracts.NewConfigurationError("relay", "Connect",
				fmt.Sprintf("service %s has no endpoint %q", si.QName(), cfg.endpoint))
		}
	}

	ep, err := endpoint.New(b, info)
	if err != nil {
		return nil, err
	}
	client, err := endpoint.NewClient(ctx, ep, cfg.client...)
	if err != nil {
		return nil, err
	}
	b.OnShutdown(client.Close)
	return client, nil
}

// Lookup connects to a service published on the bus by name and version
// constraint
func Lookup(ctx context.Context, b *bus.Bus, name, version string, opts ...ConnectOption) (*endpoint.Client, error) {
	si, err := b.Services().Resolve(name, version)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, b, si, opts...)
}

func beanName(bean interface{}) string {
	t := reflect.TypeOf(bean)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return "service"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
