package contracts

import (
	"encoding/json"
)

// Envelope wraps messages for transport
type Envelope struct {
	ID            string            `json:"id"`
	Operation     string            `json:"operation"`
	Timestamp     string            `json:"timestamp"`
	CorrelationID string            `json:"correlationId,omitempty"`
	ReplyTo       string            `json:"replyTo,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	Fault         *FaultEnvelope    `json:"fault,omitempty"`
}

// FaultEnvelope is the wire form of a Fault
type FaultEnvelope struct {
	Code   FaultCode       `json:"code"`
	Reason string          `json:"reason"`
	Name   string          `json:"name,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// IsFault reports whether the envelope carries a fault
func (e *Envelope) IsFault() bool {
	return e.Fault != nil
}

// ToFault converts the wire form back into a Fault
func (f *FaultEnvelope) ToFault() *Fault {
	fault := &Fault{Code: f.Code, Reason: f.Reason, Name: f.Name}
	if len(f.Detail) > 0 {
		fault.Detail = f.Detail
	}
	return fault
}
