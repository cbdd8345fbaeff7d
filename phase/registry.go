package phase

import (
	"fmt"
	"strings"

	"github.com/glimte/relay-go/contracts"
)

// Registry holds the fixed phase orders for both directions. It is immutable
// once built and safe for concurrent use.
type Registry struct {
	inbound  []Phase
	outbound []Phase
	inIndex  map[string]int
	outIndex map[string]int
}

type insertion struct {
	direction contracts.Direction
	name      string
	after     string
}

type registryConfig struct {
	inbound    []string
	outbound   []string
	insertions []insertion
}

// Option configures a Registry
type Option func(*registryConfig)

// WithInbound replaces the default inbound phase order
func WithInbound(names ...string) Option {
	return func(c *registryConfig) {
		c.inbound = names
	}
}

// WithOutbound replaces the default outbound phase order
func WithOutbound(names ...string) Option {
	return func(c *registryConfig) {
		c.outbound = names
	}
}

// WithInsertAfter inserts a custom phase directly after an existing one
func WithInsertAfter(direction contracts.Direction, name, after string) Option {
	return func(c *registryConfig) {
		c.insertions = append(c.insertions, insertion{direction: direction, name: name, after: after})
	}
}

// NewRegistry builds a registry. Duplicate or empty phase names and unknown
// insertion anchors fail with a *contracts.ConfigurationError.
func NewRegistry(options ...Option) (*Registry, error) {
	cfg := &registryConfig{
		inbound:  DefaultInbound(),
		outbound: DefaultOutbound(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	inNames := append([]string(nil), cfg.inbound...)
	outNames := append([]string(nil), cfg.outbound...)

	for _, ins := range cfg.insertions {
		var err error
		switch ins.direction {
		case contracts.Inbound:
			inNames, err = insertAfter(inNames, ins.name, ins.after)
		case contracts.Outbound:
			outNames, err = insertAfter(outNames, ins.name, ins.after)
		default:
			err = contracts.NewConfigurationError("PhaseRegistry", "Insert",
				fmt.Sprintf("unknown direction %d", ins.direction))
		}
		if err != nil {
			return nil, err
		}
	}

	inbound, inIndex, err := build(contracts.Inbound, inNames)
	if err != nil {
		return nil, err
	}
	outbound, outIndex, err := build(contracts.Outbound, outNames)
	if err != nil {
		return nil, err
	}

	return &Registry{
		inbound:  inbound,
		outbound: outbound,
		inIndex:  inIndex,
		outIndex: outIndex,
	}, nil
}

// MustNewRegistry is like NewRegistry but panics on error
func MustNewRegistry(options ...Option) *Registry {
	r, err := NewRegistry(options...)
	if err != nil {
		panic(err)
	}
	return r
}

func insertAfter(names []string, name, after string) ([]string, error) {
	for i, n := range names {
		if n == after {
			out := make([]string, 0, len(names)+1)
			out = append(out, names[:i+1]...)
			out = append(out, name)
			out = append(out, names[i+1:]...)
			return out, nil
		}
	}
	return nil, contracts.NewConfigurationError("PhaseRegistry", "Insert",
		fmt.Sprintf("cannot insert phase %q: anchor phase %q not found", name, after))
}

func build(direction contracts.Direction, names []string) ([]Phase, map[string]int, error) {
	if len(names) == 0 {
		return nil, nil, contracts.NewConfigurationError("PhaseRegistry", "Build",
			fmt.Sprintf("no %s phases defined", direction))
	}

	phases := make([]Phase, 0, len(names))
	index := make(map[string]int, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, nil, contracts.NewConfigurationError("PhaseRegistry", "Build",
				fmt.Sprintf("empty %s phase name at position %d", direction, i))
		}
		if strings.TrimSpace(name) != name {
			return nil, nil, contracts.NewConfigurationError("PhaseRegistry", "Build",
				fmt.Sprintf("%s phase %q has surrounding whitespace", direction, name))
		}
		if _, dup := index[name]; dup {
			return nil, nil, contracts.NewConfigurationError("PhaseRegistry", "Build",
				fmt.Sprintf("duplicate %s phase %q", direction, name))
		}
		index[name] = i
		phases = append(phases, Phase{Name: name, Priority: i})
	}
	return phases, index, nil
}

// Phases returns a copy of the phase order for a direction
func (r *Registry) Phases(direction contracts.Direction) []Phase {
	src := r.inbound
	if direction == contracts.Outbound {
		src = r.outbound
	}
	out := make([]Phase, len(src))
	copy(out, src)
	return out
}

// Position returns the order position of a phase
func (r *Registry) Position(direction contracts.Direction, name string) (int, error) {
	index := r.inIndex
	if direction == contracts.Outbound {
		index = r.outIndex
	}
	pos, ok := index[name]
	if !ok {
		return -1, contracts.NewConfigurationError("PhaseRegistry", "Position",
			fmt.Sprintf("unknown %s phase %q", direction, name))
	}
	return pos, nil
}

// Lookup finds a phase by name
func (r *Registry) Lookup(direction contracts.Direction, name string) (Phase, bool) {
	pos, err := r.Position(direction, name)
	if err != nil {
		return Phase{}, false
	}
	if direction == contracts.Outbound {
		return r.outbound[pos], true
	}
	return r.inbound[pos], true
}
