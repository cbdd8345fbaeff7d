package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

// State is the lifecycle state of a chain
type State int

const (
	StateIdle State = iota
	StateExecuting
	StatePaused
	StateComplete
	StateFaulted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	case StateFaulted:
		return "faulted"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a chain until it stops
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomePaused
	OutcomeFault
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomePaused:
		return "paused"
	case OutcomeFault:
		return "fault"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FaultObserver receives a message after its chain has faulted and unwound.
// It is expected to start the fault chain of the opposite direction.
type FaultObserver interface {
	OnFault(ctx context.Context, msg *contracts.Message)
}

// FaultObserverFunc is a function adapter for FaultObserver
type FaultObserverFunc func(ctx context.Context, msg *contracts.Message)

// OnFault implements FaultObserver
func (f FaultObserverFunc) OnFault(ctx context.Context, msg *contracts.Message) {
	f(ctx, msg)
}

type bucket struct {
	phase   phase.Phase
	entries []*entry
}

// PhaseInterceptorChain runs interceptors for a single message in phase order.
// A chain is built per exchange; Pause, Resume, Fail and Abort may be called
// from other goroutines.
type PhaseInterceptorChain struct {
	mu      sync.Mutex
	buckets []*bucket
	index   map[string]int
	ids     map[string]struct{}
	seq     int

	state      State
	curBucket  int
	curEntry   int
	executed   []*entry
	msg        *contracts.Message
	pauseReq   bool
	resumeReq  bool
	abortReq   bool
	pendingErr error
	committed  bool

	faultObserver FaultObserver
	binders       []ContextBinder
	logger        *slog.Logger
}

// ChainOption configures a PhaseInterceptorChain
type ChainOption func(*PhaseInterceptorChain)

// WithLogger sets the chain logger
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *PhaseInterceptorChain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFaultObserver sets the observer notified after the chain faults
func WithFaultObserver(observer FaultObserver) ChainOption {
	return func(c *PhaseInterceptorChain) {
		c.faultObserver = observer
	}
}

// WithContextBinders adds binders applied before every interceptor call
func WithContextBinders(binders ...ContextBinder) ChainOption {
	return func(c *PhaseInterceptorChain) {
		c.binders = append(c.binders, binders...)
	}
}

// NewPhaseInterceptorChain creates an empty chain over the given phases
func NewPhaseInterceptorChain(phases []phase.Phase, opts ...ChainOption) *PhaseInterceptorChain {
	c := &PhaseInterceptorChain{
		buckets: make([]*bucket, len(phases)),
		index:   make(map[string]int, len(phases)),
		ids:     make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for i, p := range phases {
		c.buckets[i] = &bucket{phase: p}
		c.index[p.Name] = i
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFaultObserver replaces the fault observer
func (c *PhaseInterceptorChain) SetFaultObserver(observer FaultObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faultObserver = observer
}

// FaultObserver returns the fault observer, or nil
func (c *PhaseInterceptorChain) FaultObserver() FaultObserver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faultObserver
}

// AddBinder appends a context binder
func (c *PhaseInterceptorChain) AddBinder(binder ContextBinder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binders = append(c.binders[:len(c.binders):len(c.binders)], binder)
}

// Add inserts interceptors in phase order. Interceptors whose id is already
// present are ignored. When called while the chain runs, an interceptor for a
// phase that has already passed is recorded but never executed.
func (c *PhaseInterceptorChain) Add(interceptors ...PhaseInterceptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, pi := range interceptors {
		if err := c.add(pi); err != nil {
			return err
		}
	}
	return nil
}

// AddAt binds a plain interceptor to a phase and inserts it
func (c *PhaseInterceptorChain) AddAt(phaseName string, interceptor Interceptor) error {
	if pi, ok := interceptor.(PhaseInterceptor); ok && pi.Phase() == phaseName {
		return c.Add(pi)
	}
	return c.Add(Bind(phaseName, interceptor))
}

func (c *PhaseInterceptorChain) add(pi PhaseInterceptor) error {
	id := pi.ID()
	if _, dup := c.ids[id]; dup {
		c.logger.Debug("interceptor already in chain", "interceptor", id)
		return nil
	}

	bi, ok := c.index[pi.Phase()]
	if !ok {
		return contracts.NewConfigurationError("PhaseInterceptorChain", "Add",
			fmt.Sprintf("interceptor %q bound to unknown phase %q", id, pi.Phase()))
	}

	c.seq++
	e := &entry{interceptor: pi, seq: c.seq}
	b := c.buckets[bi]

	active := c.state == StateExecuting || c.state == StatePaused
	if active && bi == c.curBucket && c.curEntry > 0 {
		if err := c.insertIntoCurrent(b, e); err != nil {
			return err
		}
	} else {
		sorted, err := sortPhase(b.phase.Name, append(append([]*entry(nil), b.entries...), e))
		if err != nil {
			return err
		}
		b.entries = sorted
		if active && bi < c.curBucket {
			c.logger.Debug("interceptor added to a passed phase will not run",
				"interceptor", id,
				"phase", b.phase.Name,
			)
		}
	}

	c.ids[id] = struct{}{}
	return nil
}

// insertIntoCurrent adds to the running phase. Entries up to the cursor are
// frozen; only the remainder is re-sorted.
func (c *PhaseInterceptorChain) insertIntoCurrent(b *bucket, e *entry) error {
	head := b.entries[:c.curEntry]
	tail := b.entries[c.curEntry:]

	for _, h := range head {
		if mustPrecede(e, h) {
			c.logger.Debug("interceptor ordered before an executed interceptor will not run",
				"interceptor", e.id(),
				"phase", b.phase.Name,
			)
			entries := make([]*entry, 0, len(b.entries)+1)
			entries = append(entries, head...)
			entries = append(entries, e)
			entries = append(entries, tail...)
			b.entries = entries
			c.curEntry++
			return nil
		}
	}

	sortedTail, err := sortPhase(b.phase.Name, append(append([]*entry(nil), tail...), e))
	if err != nil {
		return err
	}
	entries := make([]*entry, 0, len(b.entries)+1)
	entries = append(entries, head...)
	entries = append(entries, sortedTail...)
	b.entries = entries
	return nil
}

// DoIntercept runs the chain for a message until it completes, pauses,
// faults or is aborted
func (c *PhaseInterceptorChain) DoIntercept(ctx context.Context, msg *contracts.Message) Outcome {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StatePaused:
		c.mu.Unlock()
		c.logger.Warn("DoIntercept called on a paused chain, resuming", "messageId", msg.ID)
		if err := c.Resume(ctx); err != nil {
			c.logger.Warn("resume failed", "messageId", msg.ID, "error", err)
		}
		return c.outcome()
	default:
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("DoIntercept called on a chain that is not idle",
			"messageId", msg.ID,
			"state", state.String(),
		)
		return c.outcome()
	}

	c.state = StateExecuting
	c.msg = msg
	c.mu.Unlock()

	msg.SetChain(c)
	return c.run(ctx)
}

// Pause stops the chain once the current interceptor returns
func (c *PhaseInterceptorChain) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateExecuting {
		c.pauseReq = true
	}
}

// Resume continues a paused chain from the next unexecuted interceptor. It
// may be called before the pausing interceptor has returned, in which case
// the chain simply carries on.
func (c *PhaseInterceptorChain) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StatePaused:
		c.state = StateExecuting
		c.mu.Unlock()
		c.run(ctx)
		return nil
	case c.state == StateExecuting && c.pauseReq:
		c.resumeReq = true
		c.mu.Unlock()
		return nil
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("resume chain in state %s: %w", state, contracts.ErrChainNotPaused)
	}
}

// Fail injects a fault from outside the chain, such as a timeout or a
// transport disconnect. A paused chain unwinds immediately; a running chain
// unwinds once the current interceptor returns. It reports whether the fault
// was accepted.
func (c *PhaseInterceptorChain) Fail(ctx context.Context, err error) bool {
	c.mu.Lock()
	if c.committed {
		c.mu.Unlock()
		return false
	}
	switch c.state {
	case StatePaused:
		c.state = StateFaulted
		unwind := c.executed
		msg := c.msg
		c.mu.Unlock()
		c.fault(ctx, msg, err, unwind)
		return true
	case StateExecuting:
		if c.pendingErr != nil {
			c.mu.Unlock()
			return false
		}
		c.pendingErr = err
		c.mu.Unlock()
		return true
	default:
		c.mu.Unlock()
		return false
	}
}

// Commit stops the chain from accepting external faults. It is called once
// the exchange's response starts on its way. Commit fails when a fault was
// injected before it and has not been applied yet.
func (c *PhaseInterceptorChain) Commit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingErr != nil || c.state == StateFaulted {
		return false
	}
	c.committed = true
	return true
}

// Abort stops the chain without raising a fault
func (c *PhaseInterceptorChain) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateExecuting:
		c.abortReq = true
	case StatePaused, StateIdle:
		c.state = StateAborted
	}
}

// Reset returns the chain to idle so it can process another message
func (c *PhaseInterceptorChain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.curBucket = 0
	c.curEntry = 0
	c.executed = nil
	c.msg = nil
	c.pauseReq = false
	c.resumeReq = false
	c.abortReq = false
	c.pendingErr = nil
	c.committed = false
}

// State returns the current state
func (c *PhaseInterceptorChain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Interceptors returns the interceptors in execution order
func (c *PhaseInterceptorChain) Interceptors() []PhaseInterceptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []PhaseInterceptor
	for _, b := range c.buckets {
		for _, e := range b.entries {
			out = append(out, e.interceptor)
		}
	}
	return out
}

// String renders the chain as phase: ids groups
func (c *PhaseInterceptorChain) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var parts []string
	for _, b := range c.buckets {
		if len(b.entries) == 0 {
			continue
		}
		ids := make([]string, len(b.entries))
		for i, e := range b.entries {
			ids[i] = e.id()
		}
		parts = append(parts, b.phase.Name+": "+strings.Join(ids, ", "))
	}
	return "chain[" + strings.Join(parts, " | ") + "]"
}

// Clone returns an idle copy with the same interceptors and settings
func (c *PhaseInterceptorChain) Clone(opts ...ChainOption) *PhaseInterceptorChain {
	c.mu.Lock()
	clone := &PhaseInterceptorChain{
		buckets:       make([]*bucket, len(c.buckets)),
		index:         c.index,
		ids:           make(map[string]struct{}, len(c.ids)),
		seq:           c.seq,
		faultObserver: c.faultObserver,
		binders:       append([]ContextBinder(nil), c.binders...),
		logger:        c.logger,
	}
	for i, b := range c.buckets {
		clone.buckets[i] = &bucket{phase: b.phase, entries: append([]*entry(nil), b.entries...)}
	}
	for id := range c.ids {
		clone.ids[id] = struct{}{}
	}
	c.mu.Unlock()

	for _, opt := range opts {
		opt(clone)
	}
	return clone
}

func (c *PhaseInterceptorChain) outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePaused, StateExecuting:
		return OutcomePaused
	case StateFaulted:
		return OutcomeFault
	case StateAborted:
		return OutcomeAborted
	default:
		return OutcomeComplete
	}
}

// next returns the next entry to run and advances the cursor. Must hold mu.
func (c *PhaseInterceptorChain) next() *entry {
	for c.curBucket < len(c.buckets) {
		b := c.buckets[c.curBucket]
		if c.curEntry < len(b.entries) {
			e := b.entries[c.curEntry]
			c.curEntry++
			return e
		}
		c.curBucket++
		c.curEntry = 0
	}
	return nil
}

func (c *PhaseInterceptorChain) run(ctx context.Context) Outcome {
	msg := c.msg
	for {
		c.mu.Lock()
		if c.pendingErr != nil {
			err := c.pendingErr
			c.pendingErr = nil
			c.state = StateFaulted
			unwind := c.executed
			c.mu.Unlock()
			c.fault(ctx, msg, err, unwind)
			return OutcomeFault
		}
		if c.abortReq {
			c.abortReq = false
			c.state = StateAborted
			c.mu.Unlock()
			c.logger.Debug("chain aborted", "messageId", msg.ID)
			return OutcomeAborted
		}
		if c.pauseReq {
			c.pauseReq = false
			if c.resumeReq {
				c.resumeReq = false
			} else {
				c.state = StatePaused
				c.mu.Unlock()
				c.logger.Debug("chain paused", "messageId", msg.ID)
				return OutcomePaused
			}
		}

		e := c.next()
		if e == nil {
			c.state = StateComplete
			c.mu.Unlock()
			return OutcomeComplete
		}
		phaseName := c.buckets[c.curBucket].phase.Name
		c.mu.Unlock()

		c.logger.Debug("invoking interceptor",
			"messageId", msg.ID,
			"phase", phaseName,
			"interceptor", e.id(),
		)

		if err := c.invoke(ctx, msg, e); err != nil {
			c.mu.Lock()
			c.state = StateFaulted
			c.pendingErr = nil
			c.pauseReq = false
			c.resumeReq = false
			unwind := c.executed
			c.mu.Unlock()

			c.logger.Debug("interceptor faulted",
				"messageId", msg.ID,
				"phase", phaseName,
				"interceptor", e.id(),
				"error", err,
			)
			c.fault(ctx, msg, err, unwind)
			return OutcomeFault
		}

		c.mu.Lock()
		c.executed = append(c.executed, e)
		c.mu.Unlock()
	}
}

func (c *PhaseInterceptorChain) invoke(ctx context.Context, msg *contracts.Message, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interceptor %s panicked: %v", e.id(), r)
		}
	}()
	return e.interceptor.HandleMessage(c.bind(ctx, msg), msg)
}

// fault records the fault, unwinds the given interceptors in reverse order
// and hands the message to the fault observer
func (c *PhaseInterceptorChain) fault(ctx context.Context, msg *contracts.Message, err error, unwind []*entry) {
	f := contracts.AsFault(err)
	msg.SetFault(f)

	for i := len(unwind) - 1; i >= 0; i-- {
		c.unwindOne(ctx, msg, unwind[i])
	}

	c.mu.Lock()
	observer := c.faultObserver
	c.mu.Unlock()

	if observer == nil {
		c.logger.Error("chain faulted with no fault observer",
			"messageId", msg.ID,
			"operation", msg.Operation(),
			"error", f,
		)
		return
	}
	observer.OnFault(c.bind(ctx, msg), msg)
}

func (c *PhaseInterceptorChain) unwindOne(ctx context.Context, msg *contracts.Message, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("HandleFault panicked",
				"messageId", msg.ID,
				"interceptor", e.id(),
				"panic", r,
			)
		}
	}()
	e.interceptor.HandleFault(c.bind(ctx, msg), msg)
}
