package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConnection struct {
	mock.Mock
}

func (m *mockConnection) IsConnected() bool {
	return m.Called().Bool(0)
}

type fakeServer bool

func (f fakeServer) Running() bool { return bool(f) }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	t.Run("connection", func(t *testing.T) {
		conn := &mockConnection{}
		conn.On("IsConnected").Return(true).Once()
		conn.On("IsConnected").Return(false).Once()

		checker := NewConnectionChecker("nats", conn)
		assert.Equal(t, StatusHealthy, checker.Check(ctx).Status)
		assert.Equal(t, StatusUnhealthy, checker.Check(ctx).Status)
		conn.AssertExpectations(t)
	})

	t.Run("server", func(t *testing.T) {
		up := NewServerChecker("inventory", "relay.demo", fakeServer(true)).Check(ctx)
		assert.Equal(t, StatusHealthy, up.Status)
		assert.Equal(t, "relay.demo", up.Details["address"])

		down := NewServerChecker("inventory", "relay.demo", fakeServer(false)).Check(ctx)
		assert.Equal(t, StatusUnhealthy, down.Status)
	})

	t.Run("runtime thresholds", func(t *testing.T) {
		assert.Equal(t, StatusHealthy, NewRuntimeChecker(1_000_000, 2_000_000).Check(ctx).Status)
		assert.Equal(t, StatusDegraded, NewRuntimeChecker(0, 1_000_000).Check(ctx).Status)
		assert.Equal(t, StatusUnhealthy, NewRuntimeChecker(0, 0).Check(ctx).Status)
	})

	t.Run("component", func(t *testing.T) {
		res := NewComponentChecker("cache", func(context.Context) (Status, string, error) {
			return StatusDegraded, "warming up", errors.New("cold")
		}).Check(ctx)
		assert.Equal(t, StatusDegraded, res.Status)
		assert.Equal(t, "cold", res.Error)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("worst status wins", func(t *testing.T) {
		reg := NewRegistry(0, quiet())
		reg.Register(NewServerChecker("a", "x", fakeServer(true)))
		reg.Register(NewComponentChecker("b", func(context.Context) (Status, string, error) {
			return StatusDegraded, "slow", nil
		}))

		report := reg.Check(context.Background())
		assert.Equal(t, StatusDegraded, report.Status)
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "a", report.Checks[0].Name)
	})

	t.Run("empty registry is healthy", func(t *testing.T) {
		assert.Equal(t, StatusHealthy, NewRegistry(0, quiet()).Check(context.Background()).Status)
	})

	t.Run("handler", func(t *testing.T) {
		reg := NewRegistry(0, quiet())
		reg.Register(NewServerChecker("inventory", "relay.demo", fakeServer(false)))

		rec := httptest.NewRecorder()
		reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var report Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, StatusUnhealthy, report.Status)
	})
}
