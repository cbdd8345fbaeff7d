//go:build integration

package nats

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
)

func brokerURL() string {
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return natsgo.DefaultURL
}

func TestRequestReplyIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr := NewTransport(brokerURL(), WithQueueGroup("relay-it"))
	require.NoError(t, tr.Connect(ctx))
	defer tr.Close()

	ep := &service.EndpointInfo{Name: "it", TransportID: TransportID, Address: "relay.it." + uuid.NewString()}

	dest, err := tr.Destination(ctx, ep)
	require.NoError(t, err)
	defer dest.Shutdown(ctx)

	dest.SetMessageObserver(transport.MessageObserverFunc(func(ctx context.Context, in *contracts.Message) {
		back, err := dest.BackChannel(in)
		require.NoError(t, err)
		reply := contracts.NewMessage(contracts.Outbound)
		reply.Put(contracts.PropCorrelationID, in.CorrelationID())
		require.NoError(t, back.Prepare(ctx, reply))
		payload, _ := contracts.Content[[]byte](in)
		buf, _ := contracts.Content[*bytes.Buffer](reply)
		buf.Write(payload)
		require.NoError(t, back.Close(ctx, reply))
	}))

	conduit, err := tr.Conduit(ctx, ep)
	require.NoError(t, err)
	defer conduit.Shutdown(ctx)

	responses := make(chan *contracts.Message, 1)
	conduit.SetMessageObserver(transport.MessageObserverFunc(func(ctx context.Context, msg *contracts.Message) {
		responses <- msg
	}))

	ex := contracts.NewExchange()
	out := contracts.NewMessage(contracts.Outbound)
	out.SetRequestor(true)
	out.Put(contracts.PropCorrelationID, "c-it")
	ex.SetOutMessage(out)
	require.NoError(t, conduit.Prepare(ctx, out))
	buf, _ := contracts.Content[*bytes.Buffer](out)
	buf.WriteString(`{"echo":"hello"}`)
	require.NoError(t, conduit.Close(ctx, out))

	select {
	case response := <-responses:
		assert.Equal(t, "c-it", response.CorrelationID())
		payload, _ := contracts.Content[[]byte](response)
		assert.JSONEq(t, `{"echo":"hello"}`, string(payload))
	case <-ctx.Done():
		t.Fatal("no reply received")
	}
}
