// Package bus holds the runtime shared by the endpoints and clients of a
// process: phase orders, the type, transport, binding, bean and service
// registries, and interceptors applied to every chain.
//
// There is no default bus. Code that needs one receives it explicitly or
// reads it from the context with FromContext; chains bind it before each
// interceptor call.
package bus
