package databinding

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
)

// Decode turns a body into parts using the message's part list. A message
// with one part carries the part itself as the body. A message with several
// parts carries an object keyed by part name.
func Decode(types *TypeRegistry, mi *service.MessageInfo, body contracts.Body) (contracts.Parts, error) {
	if len(mi.Parts) == 0 {
		return contracts.Parts{}, nil
	}

	raw := make([]json.RawMessage, len(mi.Parts))
	switch {
	case isEmpty(body):
	case len(mi.Parts) == 1:
		raw[0] = json.RawMessage(body)
	default:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", mi.Name, err)
		}
		for i, part := range mi.Parts {
			raw[i] = fields[part.Name]
		}
	}

	parts := make(contracts.Parts, len(mi.Parts))
	for i, part := range mi.Parts {
		instance, err := types.CreateInstance(part.TypeName)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", mi.Name, part.Name, err)
		}
		if len(raw[i]) > 0 {
			if err := json.Unmarshal(raw[i], instance); err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", mi.Name, part.Name, err)
			}
		}
		parts[i] = instance
	}
	return parts, nil
}

// Encode is the inverse of Decode
func Encode(mi *service.MessageInfo, parts contracts.Parts) (contracts.Body, error) {
	if len(parts) != len(mi.Parts) {
		return nil, fmt.Errorf("encode %s: got %d parts, want %d", mi.Name, len(parts), len(mi.Parts))
	}

	var (
		data []byte
		err  error
	)
	switch len(mi.Parts) {
	case 0:
		return nil, nil
	case 1:
		data, err = json.Marshal(parts[0])
	default:
		fields := make(map[string]interface{}, len(parts))
		for i, part := range mi.Parts {
			fields[part.Name] = parts[i]
		}
		data, err = json.Marshal(fields)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", mi.Name, err)
	}
	return contracts.Body(data), nil
}

func isEmpty(body contracts.Body) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
