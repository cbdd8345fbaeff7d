// Package endpoint runs services and calls them.
//
// A Server obtains a destination for its endpoint and installs a
// ChainInitiationObserver. Each request gets a fresh exchange and a clone of
// the inbound chain: envelope parsing, operation resolution, decoding and
// invocation. The OutgoingChainInterceptor then sends the response through
// the outbound chain on the destination's back channel. A fault anywhere is
// handed to the OutFaultChainInitiator, which sends it back to the requestor
// through the out-fault chain.
//
// A Client runs requests through the outbound chain and matches responses by
// correlation id. Responses run through the inbound chain; a fault envelope
// fails that chain and comes back to the caller as a *contracts.Fault.
// Cancelling the caller's context fails the exchange with a timeout fault.
//
// Example usage:
//
//	b, _ := bus.New()
//	si, dispatcher, _ := invoker.BuildService("quotes", "urn:quotes", desk, b.Types())
//	info := si.AddEndpoint("quotes", local.TransportID, "quotes", si.AddBinding("json", binding.JSONBindingID))
//
//	ep, _ := endpoint.New(b, info)
//	server, _ := endpoint.NewServer(ep, invoker.NewBeanInvoker(invoker.NewSingletonFactory(desk), dispatcher, nil))
//	_ = server.Start(ctx)
//
//	clientEp, _ := endpoint.New(b, info)
//	client, _ := endpoint.NewClient(ctx, clientEp)
//	result, err := client.Invoke(ctx, "GetQuote", &QuoteRequest{Symbol: "ACME"})
package endpoint
