// Package binding implements the JSON envelope wire format.
//
// Inbound, EnvelopeInInterceptor parses raw bytes into a contracts.Envelope,
// OperationInInterceptor resolves the operation against the endpoint's
// BindingInfo and, on the requestor side, FaultInInterceptor turns a fault
// envelope back into a *contracts.Fault. Outbound, EnvelopeOutInterceptor
// opens the envelope in the write phase and writes it in write-ending, once
// the body or the fault (FaultOutInterceptor) has been marshalled.
package binding
