package interceptors

import (
	"log/slog"
	"sync"

	"github.com/glimte/relay-go/phase"
)

// Provider contributes interceptors to the four chains of an exchange
type Provider interface {
	InInterceptors() []PhaseInterceptor
	OutInterceptors() []PhaseInterceptor
	InFaultInterceptors() []PhaseInterceptor
	OutFaultInterceptors() []PhaseInterceptor
}

// Providers is an embeddable Provider backed by slices
type Providers struct {
	mu       sync.RWMutex
	in       []PhaseInterceptor
	out      []PhaseInterceptor
	inFault  []PhaseInterceptor
	outFault []PhaseInterceptor
}

// AddIn registers inbound interceptors
func (p *Providers) AddIn(interceptors ...PhaseInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, interceptors...)
}

// AddOut registers outbound interceptors
func (p *Providers) AddOut(interceptors ...PhaseInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, interceptors...)
}

// AddInFault registers inbound fault interceptors
func (p *Providers) AddInFault(interceptors ...PhaseInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFault = append(p.inFault, interceptors...)
}

// AddOutFault registers outbound fault interceptors
func (p *Providers) AddOutFault(interceptors ...PhaseInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outFault = append(p.outFault, interceptors...)
}

func (p *Providers) snapshot(list []PhaseInterceptor) []PhaseInterceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PhaseInterceptor(nil), list...)
}

// InInterceptors implements Provider
func (p *Providers) InInterceptors() []PhaseInterceptor { return p.snapshot(p.in) }

// OutInterceptors implements Provider
func (p *Providers) OutInterceptors() []PhaseInterceptor { return p.snapshot(p.out) }

// InFaultInterceptors implements Provider
func (p *Providers) InFaultInterceptors() []PhaseInterceptor { return p.snapshot(p.inFault) }

// OutFaultInterceptors implements Provider
func (p *Providers) OutFaultInterceptors() []PhaseInterceptor { return p.snapshot(p.outFault) }

// ChainKind selects which of a provider's lists feeds a chain
type ChainKind int

const (
	InChain ChainKind = iota
	OutChain
	InFaultChain
	OutFaultChain
)

func (k ChainKind) String() string {
	switch k {
	case InChain:
		return "in"
	case OutChain:
		return "out"
	case InFaultChain:
		return "in-fault"
	case OutFaultChain:
		return "out-fault"
	default:
		return "unknown"
	}
}

// Select returns the interceptors a provider contributes for this kind
func (k ChainKind) Select(p Provider) []PhaseInterceptor {
	switch k {
	case InChain:
		return p.InInterceptors()
	case OutChain:
		return p.OutInterceptors()
	case InFaultChain:
		return p.InFaultInterceptors()
	case OutFaultChain:
		return p.OutFaultInterceptors()
	default:
		return nil
	}
}

// Template is a sorted prototype chain. Each exchange clones its own copy.
type Template struct {
	kind  ChainKind
	chain *PhaseInterceptorChain
}

// NewTemplate collects the interceptors of the providers in order and sorts
// them once. Ordering errors surface here rather than per exchange.
func NewTemplate(kind ChainKind, phases []phase.Phase, logger *slog.Logger, providers ...Provider) (*Template, error) {
	chain := NewPhaseInterceptorChain(phases, WithLogger(logger))
	for _, p := range providers {
		if p == nil {
			continue
		}
		if err := chain.Add(kind.Select(p)...); err != nil {
			return nil, err
		}
	}
	return &Template{kind: kind, chain: chain}, nil
}

// Kind returns the chain kind the template was built for
func (t *Template) Kind() ChainKind {
	return t.kind
}

// Clone returns a fresh idle chain
func (t *Template) Clone(opts ...ChainOption) *PhaseInterceptorChain {
	return t.chain.Clone(opts...)
}

// String renders the template order
func (t *Template) String() string {
	return t.chain.String()
}
