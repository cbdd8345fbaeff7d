package interceptors

import (
	"fmt"
	"strings"

	"github.com/glimte/relay-go/contracts"
)

// entry is one interceptor in a chain together with its registration sequence
type entry struct {
	interceptor PhaseInterceptor
	seq         int
}

func (e *entry) id() string {
	return e.interceptor.ID()
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// mustPrecede reports whether a declared constraint puts a before b
func mustPrecede(a, b *entry) bool {
	return contains(a.interceptor.Before(), b.id()) || contains(b.interceptor.After(), a.id())
}

// sortPhase orders the interceptors of one phase. Declared before/after
// relations are honoured; everything else keeps registration order.
func sortPhase(phaseName string, entries []*entry) ([]*entry, error) {
	n := len(entries)
	if n < 2 {
		return entries, nil
	}

	// incoming[i] counts unresolved predecessors of entries[i]
	incoming := make([]int, n)
	successors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && mustPrecede(entries[i], entries[j]) {
				successors[i] = append(successors[i], j)
				incoming[j]++
			}
		}
	}

	sorted := make([]*entry, 0, n)
	placed := make([]bool, n)
	for len(sorted) < n {
		next := -1
		for i := 0; i < n; i++ {
			if placed[i] || incoming[i] > 0 {
				continue
			}
			if next == -1 || entries[i].seq < entries[next].seq {
				next = i
			}
		}

		if next == -1 {
			var cycle []string
			for i := 0; i < n; i++ {
				if !placed[i] {
					cycle = append(cycle, entries[i].id())
				}
			}
			return nil, contracts.NewConfigurationError("PhaseInterceptorChain", "Sort",
				fmt.Sprintf("ordering cycle in phase %q between %s", phaseName, strings.Join(cycle, ", ")))
		}

		placed[next] = true
		sorted = append(sorted, entries[next])
		for _, s := range successors[next] {
			incoming[s]--
		}
	}

	return sorted, nil
}
