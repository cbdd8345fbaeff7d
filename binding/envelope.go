package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/phase"
)

// Interceptor ids
const (
	EnvelopeInID        = "EnvelopeInInterceptor"
	EnvelopeOutID       = "EnvelopeOutInterceptor"
	EnvelopeOutEndingID = "EnvelopeOutEndingInterceptor"
	OperationInID       = "OperationInInterceptor"
	FaultInID           = "FaultInInterceptor"
	FaultOutID          = "FaultOutInterceptor"
)

// ContentType of the JSON envelope binding
const ContentType = "application/vnd.relay.envelope+json"

// DecodeEnvelope parses the wire form of an envelope
func DecodeEnvelope(data []byte) (*contracts.Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("envelope: data cannot be empty")
	}
	var env contracts.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return &env, nil
}

// EncodeEnvelope writes the wire form of an envelope
func EncodeEnvelope(env *contracts.Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope: cannot be nil")
	}
	return json.Marshal(env)
}

// EnvelopeInInterceptor parses the raw bytes of an inbound message and moves
// the envelope fields onto the message
type EnvelopeInInterceptor struct {
	interceptors.Base
	logger *slog.Logger
}

// NewEnvelopeInInterceptor creates an envelope reader
func NewEnvelopeInInterceptor(logger *slog.Logger) *EnvelopeInInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvelopeInInterceptor{
		Base:   interceptors.NewBase(EnvelopeInID, phase.Read),
		logger: logger,
	}
}

func (i *EnvelopeInInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	if _, parsed := contracts.Content[*contracts.Envelope](msg); parsed {
		return nil
	}
	raw, ok := contracts.Content[[]byte](msg)
	if !ok {
		return contracts.NewFault(contracts.FaultClient, "message has no payload")
	}

	env, err := DecodeEnvelope(raw)
	if err != nil {
		i.logger.Debug("failed to parse message envelope", "messageId", msg.ID, "error", err)
		return contracts.WrapFault(contracts.FaultClient, err)
	}

	if env.ID != "" {
		msg.ID = env.ID
	}
	if env.Operation != "" {
		msg.Put(contracts.PropOperation, env.Operation)
	}
	if env.CorrelationID != "" {
		msg.Put(contracts.PropCorrelationID, env.CorrelationID)
	}
	if env.ReplyTo != "" {
		msg.Put(contracts.PropReplyTo, env.ReplyTo)
	}
	for name, value := range env.Headers {
		msg.SetHeader(name, value)
	}

	contracts.SetContent(msg, env)
	contracts.SetContent(msg, contracts.Body(env.Body))
	return nil
}

// EnvelopeOutInterceptor opens the envelope of an outbound message. The
// envelope is completed and written in the write-ending phase, after the body
// and any fault have been marshalled.
type EnvelopeOutInterceptor struct {
	interceptors.Base
	ending *envelopeOutEnding
}

// NewEnvelopeOutInterceptor creates an envelope writer
func NewEnvelopeOutInterceptor() *EnvelopeOutInterceptor {
	return &EnvelopeOutInterceptor{
		Base:   interceptors.NewBase(EnvelopeOutID, phase.Write),
		ending: &envelopeOutEnding{Base: interceptors.NewBase(EnvelopeOutEndingID, phase.WriteEnding)},
	}
}

func (i *EnvelopeOutInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	env := &contracts.Envelope{
		ID:            msg.ID,
		Operation:     msg.Operation(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: msg.CorrelationID(),
		ReplyTo:       msg.GetString(contracts.PropReplyTo),
	}
	if len(msg.Headers) > 0 {
		env.Headers = make(map[string]string, len(msg.Headers))
		for name, value := range msg.Headers {
			env.Headers[name] = value
		}
	}
	contracts.SetContent(msg, env)
	msg.Put(contracts.PropContentType, ContentType)

	chain, ok := interceptors.ChainFromContext(ctx)
	if !ok {
		return i.ending.HandleMessage(ctx, msg)
	}
	return chain.Add(i.ending)
}

type envelopeOutEnding struct {
	interceptors.Base
}

func (i *envelopeOutEnding) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	env, ok := contracts.Content[*contracts.Envelope](msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "outbound envelope was never opened")
	}
	if body, ok := contracts.Content[contracts.Body](msg); ok {
		env.Body = json.RawMessage(body)
	}
	if fault, ok := contracts.Content[*contracts.FaultEnvelope](msg); ok {
		env.Fault = fault
		env.Body = nil
	}

	data, err := EncodeEnvelope(env)
	if err != nil {
		return contracts.WrapFault(contracts.FaultServer, err)
	}

	buf, ok := contracts.Content[*bytes.Buffer](msg)
	if !ok {
		buf = &bytes.Buffer{}
		contracts.SetContent(msg, buf)
	}
	buf.Write(data)
	return nil
}
