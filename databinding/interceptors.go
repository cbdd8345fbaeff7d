package databinding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
)

// Interceptor ids
const (
	UnmarshalID        = "UnmarshalInterceptor"
	MarshalID          = "MarshalInterceptor"
	SchemaValidationID = "SchemaValidationInterceptor"
)

// messageInfo picks the message a leg carries: the input on the way to the
// provider and the output on the way back
func messageInfo(msg *contracts.Message) (*service.MessageInfo, error) {
	ex := msg.Exchange()
	if ex == nil {
		return nil, contracts.ErrNoExchange
	}
	bop, ok := contracts.Attached[*service.BindingOperationInfo](ex)
	if !ok || bop.Operation == nil {
		return nil, contracts.WrapFault(contracts.FaultClient, contracts.ErrUnknownOperation)
	}

	op := bop.Operation
	toProvider := (msg.Direction == contracts.Inbound) != msg.IsRequestor()
	if toProvider {
		return op.Input, nil
	}
	return op.Output, nil
}

// UnmarshalInterceptor decodes the body of an inbound message into parts
type UnmarshalInterceptor struct {
	interceptors.Base
	types  *TypeRegistry
	logger *slog.Logger
}

// NewUnmarshalInterceptor creates an unmarshal interceptor
func NewUnmarshalInterceptor(types *TypeRegistry, logger *slog.Logger) *UnmarshalInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnmarshalInterceptor{
		Base:   interceptors.NewBase(UnmarshalID, phase.Unmarshal),
		types:  types,
		logger: logger,
	}
}

func (i *UnmarshalInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	if _, done := contracts.Content[contracts.Parts](msg); done {
		return nil
	}
	mi, err := messageInfo(msg)
	if err != nil {
		return err
	}
	if mi == nil {
		contracts.SetContent(msg, contracts.Parts{})
		return nil
	}

	body, _ := contracts.Content[contracts.Body](msg)
	parts, err := Decode(i.types, mi, body)
	if err != nil {
		i.logger.Debug("failed to decode message body",
			"messageId", msg.ID,
			"message", mi.Name,
			"error", err)
		return contracts.WrapFault(contracts.FaultClient, err)
	}
	contracts.SetContent(msg, parts)
	return nil
}

// MarshalInterceptor encodes the parts of an outbound message into its body
type MarshalInterceptor struct {
	interceptors.Base
}

// NewMarshalInterceptor creates a marshal interceptor
func NewMarshalInterceptor() *MarshalInterceptor {
	return &MarshalInterceptor{Base: interceptors.NewBase(MarshalID, phase.Marshal)}
}

func (i *MarshalInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	if msg.Fault() != nil {
		return nil
	}
	mi, err := messageInfo(msg)
	if err != nil {
		return err
	}
	if mi == nil {
		return nil
	}

	parts, _ := contracts.Content[contracts.Parts](msg)
	body, err := Encode(mi, parts)
	if err != nil {
		return contracts.WrapFault(contracts.FaultServer, err)
	}
	contracts.SetContent(msg, body)
	return nil
}

// SchemaValidationInterceptor checks each part of an inbound body against the
// part's JSON schema before it is decoded
type SchemaValidationInterceptor struct {
	interceptors.Base
	logger *slog.Logger
}

// NewSchemaValidationInterceptor creates a schema validation interceptor
func NewSchemaValidationInterceptor(logger *slog.Logger) *SchemaValidationInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &SchemaValidationInterceptor{
		Base:   interceptors.NewBase(SchemaValidationID, phase.Unmarshal),
		logger: logger,
	}
	i.AddBefore(UnmarshalID)
	return i
}

func (i *SchemaValidationInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	mi, err := messageInfo(msg)
	if err != nil {
		return err
	}
	if mi == nil {
		return nil
	}

	body, _ := contracts.Content[contracts.Body](msg)
	for idx, part := range mi.Parts {
		if len(part.Schema) == 0 {
			continue
		}
		doc := partDocument(body, mi, idx)
		if err := validate(part, doc); err != nil {
			i.logger.Debug("schema validation failed",
				"messageId", msg.ID,
				"part", part.Name,
				"error", err)
			return contracts.WrapFault(contracts.FaultClient, err)
		}
	}
	return nil
}

func partDocument(body contracts.Body, mi *service.MessageInfo, idx int) []byte {
	if isEmpty(body) {
		return []byte("null")
	}
	if len(mi.Parts) == 1 {
		return body
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body
	}
	if raw, ok := fields[mi.Parts[idx].Name]; ok {
		return raw
	}
	return []byte("null")
}

func validate(part *service.MessagePartInfo, doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(part.Schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("part %s: %w", part.Name, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("part %s does not match its schema: %s", part.Name, strings.Join(problems, "; "))
}
