package databinding

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

const draft07 = "http://json-schema.org/draft-07/schema#"

// SchemaGenerator generates JSON schemas from Go types
type SchemaGenerator struct {
	// structs currently being expanded, to stop on recursive types
	seen        map[reflect.Type]bool
	definitions map[string]interface{}
}

// NewSchemaGenerator creates a new JSON schema generator
func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{}
}

// Generate returns a draft-07 schema for t
func (g *SchemaGenerator) Generate(t reflect.Type) (json.RawMessage, error) {
	if t == nil {
		return nil, fmt.Errorf("type cannot be nil")
	}
	g.seen = make(map[reflect.Type]bool)
	g.definitions = make(map[string]interface{})

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := g.generateSchema(t)
	schema["$schema"] = draft07
	if t.Name() != "" {
		schema["title"] = t.Name()
	}
	if len(g.definitions) > 0 {
		schema["definitions"] = g.definitions
	}
	return json.Marshal(schema)
}

// GenerateFromRegistry returns the schema of a registered type
func (g *SchemaGenerator) GenerateFromRegistry(types *TypeRegistry, typeName string) (json.RawMessage, error) {
	t, err := types.Get(typeName)
	if err != nil {
		return nil, err
	}
	return g.Generate(t)
}

func (g *SchemaGenerator) generateSchema(t reflect.Type) map[string]interface{} {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]interface{}{"type": "integer"}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer", "minimum": 0}

	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}

	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// encoding/json writes []byte as base64
			return map[string]interface{}{"type": "string", "contentEncoding": "base64"}
		}
		return map[string]interface{}{
			"type":  "array",
			"items": g.generateSchema(t.Elem()),
		}

	case reflect.Map:
		return map[string]interface{}{
			"type":                 "object",
			"additionalProperties": g.generateSchema(t.Elem()),
		}

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return map[string]interface{}{"type": "string", "format": "date-time"}
		}
		if g.seen[t] {
			g.definitions[t.Name()] = map[string]interface{}{"type": "object"}
			return map[string]interface{}{"$ref": "#/definitions/" + t.Name()}
		}
		g.seen[t] = true
		defer delete(g.seen, t)
		return g.structSchema(t)

	case reflect.Interface:
		return map[string]interface{}{}

	default:
		return map[string]interface{}{
			"type":        "string",
			"description": fmt.Sprintf("unsupported kind %v", t.Kind()),
		}
	}
}

func (g *SchemaGenerator) structSchema(t reflect.Type) map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					omitempty = true
				}
			}
		}

		fieldSchema := g.generateSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema["description"] = desc
		}
		properties[name] = fieldSchema

		if !omitempty && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
