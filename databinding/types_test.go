package databinding

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth,omitempty"`
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestTypeRegistry(t *testing.T) {
	t.Run("registers type with name", func(t *testing.T) {
		registry := NewTypeRegistry()

		require.NoError(t, registry.Register("QuoteRequest", &quoteRequest{}))
		assert.True(t, registry.IsRegistered("QuoteRequest"))
	})

	t.Run("registers type automatically", func(t *testing.T) {
		registry := NewTypeRegistry()

		require.NoError(t, registry.RegisterType(quoteRequest{}))
		types := registry.ListTypes()
		require.Len(t, types, 1)
		assert.Equal(t, "github.com/glimte/relay-go/databinding.quoteRequest", types[0])
	})

	t.Run("rejects empty type name", func(t *testing.T) {
		err := NewTypeRegistry().Register("", &quoteRequest{})
		assert.ErrorContains(t, err, "type name cannot be empty")
	})

	t.Run("rejects nil type", func(t *testing.T) {
		err := NewTypeRegistry().Register("Test", nil)
		assert.ErrorContains(t, err, "message type cannot be nil")
	})

	t.Run("rejects non-struct types", func(t *testing.T) {
		err := NewTypeRegistry().Register("Test", "not a struct")
		assert.ErrorContains(t, err, "must be a struct")
	})

	t.Run("same type twice is fine", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("QuoteRequest", &quoteRequest{}))
		assert.NoError(t, registry.RegisterReflect("QuoteRequest", reflect.TypeOf(quoteRequest{})))
	})

	t.Run("rejects a different type under a taken name", func(t *testing.T) {
		registry := NewTypeRegistry()
		require.NoError(t, registry.Register("Quote", &quoteRequest{}))
		assert.ErrorContains(t, registry.Register("Quote", &quoteResponse{}), "already registered")
	})
}

func TestTypeRegistry_CreateInstance(t *testing.T) {
	registry := NewTypeRegistry()
	require.NoError(t, registry.Register("QuoteRequest", &quoteRequest{}))

	t.Run("creates instance of registered type", func(t *testing.T) {
		instance, err := registry.CreateInstance("QuoteRequest")
		require.NoError(t, err)
		req, ok := instance.(*quoteRequest)
		assert.True(t, ok)
		assert.NotNil(t, req)
	})

	t.Run("returns error for unregistered type", func(t *testing.T) {
		_, err := registry.CreateInstance("Unknown")
		assert.ErrorContains(t, err, "not registered")
	})
}

func TestTypeRegistry_TypeName(t *testing.T) {
	registry := NewTypeRegistry()
	require.NoError(t, registry.Register("QuoteRequest", &quoteRequest{}))

	name, err := registry.TypeName(&quoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, "QuoteRequest", name)

	_, err = registry.TypeName(quoteResponse{})
	assert.ErrorContains(t, err, "not registered")

	_, err = registry.TypeName(nil)
	assert.ErrorContains(t, err, "cannot be nil")
}
