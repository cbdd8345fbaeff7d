package service

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrAlreadyPublished is returned when a name and version pair is taken
	ErrAlreadyPublished = errors.New("service: already published")
	// ErrNotPublished is returned when no published service matches
	ErrNotPublished = errors.New("service: not published")
)

type registryKey struct {
	name    string
	version string
}

// Registry holds the services published on a bus, keyed by name and version
type Registry struct {
	mu       sync.RWMutex
	services map[registryKey]*ServiceInfo
}

// NewRegistry creates an empty service registry
func NewRegistry() *Registry {
	return &Registry{services: make(map[registryKey]*ServiceInfo)}
}

// Publish adds a service
func (r *Registry) Publish(si *ServiceInfo) error {
	if si == nil || si.Name == "" {
		return errors.New("service: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{si.Name, si.Version}
	if _, exists := r.services[key]; exists {
		return fmt.Errorf("%w: %s@%s", ErrAlreadyPublished, si.Name, si.Version)
	}
	r.services[key] = si
	return nil
}

// Unpublish removes a service. It reports whether anything was removed.
func (r *Registry) Unpublish(name, version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{name, version}
	if _, exists := r.services[key]; !exists {
		return false
	}
	delete(r.services, key)
	return true
}

// Get returns the service with the exact name and version
func (r *Registry) Get(name, version string) (*ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	si, ok := r.services[registryKey{name, version}]
	return si, ok
}

// Find returns every service whose name matches pattern and whose version
// satisfies the constraint. Both may be empty to match anything. Results are
// ordered by name, then by version.
func (r *Registry) Find(pattern, version string) []*ServiceInfo {
	r.mu.RLock()
	var found []*ServiceInfo
	for _, si := range r.services {
		if matchesPattern(si.Name, pattern) && matchesVersion(si.Version, version) {
			found = append(found, si)
		}
	}
	r.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		if found[i].Name != found[j].Name {
			return found[i].Name < found[j].Name
		}
		return versionLess(found[i].Version, found[j].Version)
	})
	return found
}

// Resolve returns the highest version of name satisfying the constraint
func (r *Registry) Resolve(name, version string) (*ServiceInfo, error) {
	var match *ServiceInfo
	for _, si := range r.Find(name, version) {
		if si.Name == name {
			match = si
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotPublished, name, version)
	}
	return match, nil
}

// Len returns the number of published services
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}

// matchesPattern checks a name against a pattern where * matches any run of characters
func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == name {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	// Escape everything except *, then anchor
	expr := regexp.QuoteMeta(pattern)
	expr = "^" + strings.ReplaceAll(expr, `\*`, ".*") + "$"

	matched, err := regexp.MatchString(expr, name)
	return err == nil && matched
}

// matchesVersion checks a version against an exact version, an x-wildcard
// ("1.x", "1.2.x") or a semver constraint
func matchesVersion(version, requested string) bool {
	if requested == "" || version == requested {
		return true
	}

	if strings.Contains(requested, "x") {
		expr := strings.ReplaceAll(requested, ".", `\.`)
		expr = "^" + strings.ReplaceAll(expr, "x", "[0-9]+") + "$"
		if matched, err := regexp.MatchString(expr, version); err == nil && matched {
			return true
		}
	}

	constraint, err := semver.NewConstraint(requested)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}
