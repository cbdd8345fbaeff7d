package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesVersion(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		expected  bool
	}{
		// Empty version
		{"empty version matches any", "", true},

		// Exact matches
		{"exact match", "1.2.3", true},
		{"exact mismatch", "1.2.4", false},

		// Wildcard patterns
		{"major wildcard", "1.x", true},
		{"major wildcard mismatch", "2.x", false},
		{"minor wildcard", "1.2.x", true},
		{"minor wildcard mismatch", "1.3.x", false},
		{"full wildcard", "x.x.x", true},

		// Semantic version constraints
		{"caret range match", "^1.2.0", true},
		{"caret range too high", "^1.3.0", false},
		{"caret range major mismatch", "^2.0.0", false},
		{"tilde range match", "~1.2.0", true},
		{"tilde range mismatch", "~1.3.0", false},
		{"greater than", ">1.2.0", true},
		{"greater than equal", ">=1.2.3", true},
		{"less than", "<2.0.0", true},
		{"less than mismatch", "<1.2.0", false},
		{"range", ">=1.0.0 <2.0.0", true},
		{"range mismatch", ">=2.0.0", false},

		// Invalid patterns
		{"invalid constraint", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesVersion("1.2.3", tt.requested), "version %s", tt.requested)
		})
	}
}

func TestMatchesVersion_NonSemver(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		expected  bool
	}{
		{"empty matches", "", true},
		{"exact match", "alpha", true},
		{"exact mismatch", "beta", false},
		{"semver constraint fails", "^1.0.0", false},
		{"wildcard fails", "1.x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesVersion("alpha", tt.requested))
		})
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected bool
	}{
		{"empty pattern matches", "", true},
		{"exact match", "order.validate.items", true},
		{"exact mismatch", "order.validate.item", false},

		{"trailing wildcard", "order.*", true},
		{"trailing wildcard deeper", "order.validate.*", true},
		{"trailing wildcard mismatch", "inventory.*", false},

		{"leading wildcard", "*.items", true},
		{"leading wildcard mismatch", "*.products", false},

		{"middle wildcard", "order.*.items", true},
		{"middle wildcard mismatch", "order.*.products", false},

		{"multiple wildcards", "*.validate.*", true},
		{"all wildcard", "*", true},

		{"no wildcard mismatch", "order", false},
		{"partial match no wildcard", "order.validate", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesPattern("order.validate.items", tt.pattern), "pattern %s", tt.pattern)
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	for _, si := range []*ServiceInfo{
		NewServiceInfo("order.validate", "", "1.0.0"),
		NewServiceInfo("order.validate", "", "1.4.2"),
		NewServiceInfo("order.validate", "", "2.1.0"),
		NewServiceInfo("order.ship", "", "1.1.0"),
		NewServiceInfo("inventory.reserve", "", "1.0.0"),
	} {
		require.NoError(t, reg.Publish(si))
	}
	assert.Equal(t, 5, reg.Len())

	t.Run("duplicate publish", func(t *testing.T) {
		err := reg.Publish(NewServiceInfo("order.ship", "", "1.1.0"))
		assert.ErrorIs(t, err, ErrAlreadyPublished)
	})

	t.Run("missing name", func(t *testing.T) {
		assert.Error(t, reg.Publish(&ServiceInfo{Version: "1.0.0"}))
	})

	t.Run("get", func(t *testing.T) {
		si, ok := reg.Get("order.ship", "1.1.0")
		require.True(t, ok)
		assert.Equal(t, "order.ship", si.Name)
		_, ok = reg.Get("order.ship", "9.9.9")
		assert.False(t, ok)
	})

	t.Run("find", func(t *testing.T) {
		tests := []struct {
			name     string
			pattern  string
			version  string
			expected []string
		}{
			{"both match", "order.*", "^1.0.0", []string{"order.ship@1.1.0", "order.validate@1.0.0", "order.validate@1.4.2"}},
			{"exact both", "order.validate", "2.1.0", []string{"order.validate@2.1.0"}},
			{"pattern fails", "billing.*", "", nil},
			{"version fails", "order.*", "^3.0.0", nil},
			{"empty both", "", "", []string{
				"inventory.reserve@1.0.0", "order.ship@1.1.0",
				"order.validate@1.0.0", "order.validate@1.4.2", "order.validate@2.1.0",
			}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var got []string
				for _, si := range reg.Find(tt.pattern, tt.version) {
					got = append(got, si.Name+"@"+si.Version)
				}
				assert.Equal(t, tt.expected, got)
			})
		}
	})

	t.Run("resolve picks highest match", func(t *testing.T) {
		si, err := reg.Resolve("order.validate", "1.x")
		require.NoError(t, err)
		assert.Equal(t, "1.4.2", si.Version)

		si, err = reg.Resolve("order.validate", "")
		require.NoError(t, err)
		assert.Equal(t, "2.1.0", si.Version)

		_, err = reg.Resolve("order.validate", "^5.0.0")
		assert.ErrorIs(t, err, ErrNotPublished)
	})

	t.Run("unpublish", func(t *testing.T) {
		assert.True(t, reg.Unpublish("inventory.reserve", "1.0.0"))
		assert.False(t, reg.Unpublish("inventory.reserve", "1.0.0"))
		assert.Equal(t, 4, reg.Len())
	})
}
