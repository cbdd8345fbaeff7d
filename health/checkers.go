package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Connection is anything that reports whether it is connected, such as a
// broker transport
type Connection interface {
	IsConnected() bool
}

// ConnectionChecker reports a transport connection
type ConnectionChecker struct {
	name string
	conn Connection
}

// NewConnectionChecker creates a connection checker
func NewConnectionChecker(name string, conn Connection) *ConnectionChecker {
	return &ConnectionChecker{name: name, conn: conn}
}

func (c *ConnectionChecker) Name() string {
	return c.name
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start}

	if c.conn.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "connected"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "not connected"
	}
	result.Duration = time.Since(start)
	return result
}

// Server is a published endpoint
type Server interface {
	Running() bool
}

// ServerChecker reports whether a server accepts requests
type ServerChecker struct {
	name    string
	address string
	server  Server
}

// NewServerChecker creates a server checker
func NewServerChecker(name, address string, server Server) *ServerChecker {
	return &ServerChecker{name: name, address: address, server: server}
}

func (c *ServerChecker) Name() string {
	return c.name
}

func (c *ServerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]interface{}{"address": c.address},
	}
	if c.server.Running() {
		result.Status = StatusHealthy
		result.Message = "accepting requests"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "stopped"
	}
	result.Duration = time.Since(start)
	return result
}

// RuntimeChecker watches the goroutine count
type RuntimeChecker struct {
	degraded  int
	unhealthy int
}

// NewRuntimeChecker creates a checker that degrades above degraded
// goroutines and fails above unhealthy
func NewRuntimeChecker(degraded, unhealthy int) *RuntimeChecker {
	return &RuntimeChecker{degraded: degraded, unhealthy: unhealthy}
}

func (c *RuntimeChecker) Name() string {
	return "runtime"
}

func (c *RuntimeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()
	result.Details = map[string]interface{}{
		"heapMb":     float64(m.HeapAlloc) / 1024 / 1024,
		"gcRuns":     m.NumGC,
		"goroutines": goroutines,
	}

	switch {
	case goroutines > c.unhealthy:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.degraded:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
	}
	result.Duration = time.Since(start)
	return result
}

// ComponentChecker adapts a function
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for a custom component
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{name: name, checker: checker}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start}

	status, message, err := c.checker(ctx)
	result.Status = status
	result.Message = message
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
