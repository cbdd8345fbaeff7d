// Package contracts provides the core data model that flows through the relay pipeline.
//
// This package defines the types every other layer is built on:
//   - Message: one leg of a call, a property bag with typed content slots and headers
//   - Exchange: correlates the inbound, outbound and fault messages of one logical call
//   - Fault: a typed protocol fault routed through the fault chains
//   - Envelope: the JSON wire form written and read by the binding layer
//   - ConfigurationError: eager failures raised while assembling phases and chains
//
// Messages are owned by one interceptor chain at a time and are not safe for
// concurrent mutation. Exchanges may be touched by the dispatching goroutine and
// by a completion goroutine and guard their state internally.
package contracts
