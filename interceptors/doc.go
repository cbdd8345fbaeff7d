// Package interceptors provides the phase-ordered interceptor chain that every
// message passes through.
//
// An interceptor is bound to one phase and may declare ordering constraints
// against other interceptors in that phase. The chain runs interceptors in
// phase order; within a phase, declared constraints are resolved by a
// topological sort and everything else keeps registration order.
//
// When HandleMessage returns an error or panics, the chain calls HandleFault
// on every interceptor that already completed, newest first, and then hands
// the message to its FaultObserver. Interceptors that have not run yet are
// never called.
//
// A chain can be suspended with Pause and continued with Resume from another
// goroutine. Per-exchange values such as the bus or the caller's principal are
// re-bound into the context before every call by ContextBinders, so nothing
// depends on the goroutine an interceptor runs on. Timeouts and transport
// failures are injected with Fail.
//
// Built-in interceptors:
//   - LoggingInterceptor: logs message processing with timing information
//   - MetricsInterceptor: feeds a MetricsCollector when the exchange completes
//   - ValidationInterceptor: rejects invalid messages with a client fault
//   - AuthenticationInterceptor: attaches the caller's Principal to the exchange
//   - RateLimitingInterceptor: limits throughput per operation
//   - TimeoutInterceptor: fails the chain when the exchange takes too long
//   - CircuitBreakerInterceptor: rejects calls to an unhealthy target
//   - DuplicateDetectionInterceptor: drops redelivered messages
//   - FilteringInterceptor: stops messages a filter rejects
//
// Example usage:
//
//	reg := phase.MustNewRegistry()
//	chain := interceptors.NewPhaseInterceptorChain(reg.Phases(contracts.Inbound),
//		interceptors.WithLogger(logger),
//		interceptors.WithFaultObserver(observer),
//	)
//	err := chain.Add(
//		interceptors.NewLoggingInterceptor(logger),
//		interceptors.NewInterceptorFunc("audit", phase.UserLogical, audit),
//	)
//	outcome := chain.DoIntercept(ctx, msg)
package interceptors
