package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{
			name:     "known flag set to true returns true",
			registry: New(map[string]bool{FlagAwaitUnload: true}),
			flag:     FlagAwaitUnload,
			expected: true,
		},
		{
			name:     "known flag set to false returns false",
			registry: New(map[string]bool{FlagAllowDuplicateSubmissions: false}),
			flag:     FlagAllowDuplicateSubmissions,
			expected: false,
		},
		{
			name:     "absent flag returns false",
			registry: New(map[string]bool{FlagAwaitUnload: true}),
			flag:     FlagAllowDuplicateSubmissions,
			expected: false,
		},
		{
			name:     "nil registry returns false",
			registry: nil,
			flag:     FlagAwaitUnload,
			expected: false,
		},
		{
			name:     "nil flags map returns false",
			registry: New(nil),
			flag:     FlagAwaitUnload,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	input := map[string]bool{FlagAwaitUnload: true}
	r := New(input)

	input[FlagAwaitUnload] = false
	input[FlagAllowDuplicateSubmissions] = true

	require.True(t, r.Enabled(FlagAwaitUnload))
	require.False(t, r.Enabled(FlagAllowDuplicateSubmissions))
}

func TestRegistry_All_ReturnsCopy(t *testing.T) {
	r := New(map[string]bool{FlagAwaitUnload: true})

	copied := r.All()
	copied[FlagAwaitUnload] = false

	require.True(t, r.Enabled(FlagAwaitUnload))
	require.Equal(t, map[string]bool{FlagAwaitUnload: true}, r.All())

	var nilRegistry *Registry
	require.Equal(t, map[string]bool{}, nilRegistry.All())
}

func TestRegistry_Unknown(t *testing.T) {
	r := New(map[string]bool{
		FlagAwaitUnload:   true,
		"session-resume":  true,
		"beta-reconciler": false,
	})
	require.Equal(t, []string{"beta-reconciler", "session-resume"}, r.Unknown())
	require.Empty(t, New(nil).Unknown())

	var nilRegistry *Registry
	require.Nil(t, nilRegistry.Unknown())
}

func TestKnown(t *testing.T) {
	require.Equal(t, []string{"allow-duplicate-submissions", "await-unload"}, Known())
}
