package databinding

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID       string            `json:"id" description:"order identifier"`
	Lines    []orderLine       `json:"lines"`
	Notes    *string           `json:"notes"`
	Tags     map[string]string `json:"tags,omitempty"`
	Placed   time.Time         `json:"placed"`
	Raw      []byte            `json:"raw,omitempty"`
	Ignored  string            `json:"-"`
	internal int
}

type orderLine struct {
	SKU      string `json:"sku"`
	Quantity uint   `json:"quantity"`
}

type node struct {
	Name     string  `json:"name"`
	Children []*node `json:"children,omitempty"`
}

func generate(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	raw, err := NewSchemaGenerator().Generate(reflect.TypeOf(v))
	require.NoError(t, err)
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &schema))
	return schema
}

func TestSchemaGenerator(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		schema := generate(t, &order{})

		assert.Equal(t, draft07, schema["$schema"])
		assert.Equal(t, "order", schema["title"])
		assert.Equal(t, "object", schema["type"])
		assert.ElementsMatch(t, []interface{}{"id", "lines", "placed"}, schema["required"])

		props := schema["properties"].(map[string]interface{})
		assert.NotContains(t, props, "Ignored")
		assert.NotContains(t, props, "internal")
		assert.Equal(t, "order identifier", props["id"].(map[string]interface{})["description"])
		assert.Equal(t, "date-time", props["placed"].(map[string]interface{})["format"])
		assert.Equal(t, "base64", props["raw"].(map[string]interface{})["contentEncoding"])

		lines := props["lines"].(map[string]interface{})
		assert.Equal(t, "array", lines["type"])
		item := lines["items"].(map[string]interface{})
		quantity := item["properties"].(map[string]interface{})["quantity"].(map[string]interface{})
		assert.Equal(t, float64(0), quantity["minimum"])
	})

	t.Run("recursive type", func(t *testing.T) {
		schema := generate(t, node{})
		children := schema["properties"].(map[string]interface{})["children"].(map[string]interface{})
		assert.Equal(t, "#/definitions/node", children["items"].(map[string]interface{})["$ref"])
		assert.Contains(t, schema["definitions"], "node")
	})

	t.Run("nil type", func(t *testing.T) {
		_, err := NewSchemaGenerator().Generate(nil)
		assert.Error(t, err)
	})

	t.Run("from registry", func(t *testing.T) {
		types := NewTypeRegistry()
		require.NoError(t, types.Register("OrderLine", orderLine{}))
		raw, err := NewSchemaGenerator().GenerateFromRegistry(types, "OrderLine")
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"sku"`)

		_, err = NewSchemaGenerator().GenerateFromRegistry(types, "Missing")
		assert.Error(t, err)
	})
}
