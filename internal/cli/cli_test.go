package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/glimte/relay-go/service"
)

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"phases", "describe", "serve", "call"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestPhases(t *testing.T) {
	ctx := context.Background()

	t.Run("both directions", func(t *testing.T) {
		out, err := run(t, ctx, "phases")
		require.NoError(t, err)
		assert.Contains(t, out, "inbound (")
		assert.Contains(t, out, "outbound (")
		assert.Contains(t, out, "post-invoke")
		assert.Contains(t, out, "prepare-send-ending")
	})

	t.Run("configured insertion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
phases:
  inbound:
    - name: audit
      after: pre-invoke
`), 0o600))

		out, err := run(t, ctx, "phases", "--direction", "in", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "audit")
		assert.NotContains(t, out, "outbound")
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, err := run(t, ctx, "phases", "-d", "sideways")
		assert.Error(t, err)
	})
}

func TestDescribe(t *testing.T) {
	out, err := run(t, context.Background(), "describe")
	require.NoError(t, err)

	var desc service.Description
	require.NoError(t, yaml.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "inventory", desc.Name)
	assert.Equal(t, "urn:relay:demo", desc.Namespace)
	assert.Len(t, desc.Operations, 3)
	require.Len(t, desc.Endpoints, 1)
	assert.Equal(t, "local", desc.Endpoints[0].Transport)

	var reserve *service.OperationDescription
	for i := range desc.Operations {
		if desc.Operations[i].Name == "Reserve" {
			reserve = &desc.Operations[i]
		}
	}
	require.NotNil(t, reserve)
	assert.Equal(t, []string{"outOfStock"}, reserve.Faults)
}

func TestCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("request response", func(t *testing.T) {
		out, err := run(t, ctx, "call", "Reserve", `{"sku":"widget","quantity":2}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"sku":"widget","reserved":2,"remaining":10}`, out)
	})

	t.Run("declared fault", func(t *testing.T) {
		_, err := run(t, ctx, "call", "Reserve", `{"sku":"sprocket","quantity":9}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outOfStock")
	})

	t.Run("one-way", func(t *testing.T) {
		out, err := run(t, ctx, "call", "Restock", `{"sku":"gizmo","quantity":5}`)
		require.NoError(t, err)
		assert.Equal(t, "sent\n", out)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := run(t, ctx, "call", "Steal", `{}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Level, Reserve, Restock")
	})

	t.Run("part count", func(t *testing.T) {
		_, err := run(t, ctx, "call", "Level")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "takes 1 part(s), got 0")
	})

	t.Run("malformed part", func(t *testing.T) {
		_, err := run(t, ctx, "call", "Level", `{"sku":`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode part request")
	})

	t.Run("invalid transport", func(t *testing.T) {
		_, err := run(t, ctx, "call", "Level", `{"sku":"widget"}`, "--transport", "smoke")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport.kind")
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	out, err := run(t, ctx, "serve", "--metrics-addr", "127.0.0.1:0", "--address", "relay.test")
	require.NoError(t, err)
	assert.Contains(t, out, "serving inventory on local:relay.test")
}
