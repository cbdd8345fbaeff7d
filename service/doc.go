// Package service models service contracts: a service exposes one interface
// of operations, each with input, output and fault messages made of typed
// parts, and is reachable through endpoints that use a binding.
//
// An operation may carry an unwrapped view that shares its messages. Walk
// visits every message, part and fault once no matter how many operations
// refer to it.
package service
