// Package invoker calls application beans on behalf of the inbound chain.
//
// BuildService turns a Go bean into a service contract and a MethodDispatcher.
// A Factory supplies bean instances per exchange (singleton, per request or
// pooled) and BeanInvoker calls the bound method, turning returned errors and
// panics into faults. ServiceInvokerInterceptor runs the invoker in the
// invoke phase, inline or on an Executor with the chain paused meanwhile.
package invoker
