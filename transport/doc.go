// Package transport defines the boundary between interceptor chains and the
// wire.
//
// A Destination receives messages for an endpoint and hands them to its
// MessageObserver; a Conduit sends messages to a target and delivers any
// responses to its own observer. Factories are registered by transport ID:
//
//	reg := transport.NewRegistry(local.NewTransport(hub, logger))
//	dest, err := reg.Destination(ctx, endpointInfo)
//
// The MessageSenderInterceptor drives the conduit attached to an exchange:
// it prepares the output buffer in prepare-send and sends in
// prepare-send-ending, after the envelope has been written.
package transport
