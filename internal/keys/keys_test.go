package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		scope    string
		subscope string
		want     string
	}{
		{"scope only", "user42", "", "user42"},
		{"scope and subscope", "user42", "profile", "user42::profile"},
		{"default scope", "", "", "global"},
		{"default scope with subscope", "", "profile", "global::profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Derive(tt.scope, tt.subscope))
		})
	}
}

func TestSplit(t *testing.T) {
	scope, subscope := Split("user42::profile")
	require.Equal(t, "user42", scope)
	require.Equal(t, "profile", subscope)

	scope, subscope = Split("global")
	require.Equal(t, "global", scope)
	require.Empty(t, subscope)
}

func TestDerive_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scope := rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(t, "scope")
		subscope := rapid.StringMatching(`[a-z0-9]{0,12}`).Draw(t, "subscope")

		key := Derive(scope, subscope)
		require.Equal(t, key, Derive(scope, subscope), "derive must be deterministic")

		if subscope == "" {
			require.Equal(t, scope, key)
		} else {
			require.Equal(t, scope+"::"+subscope, key)
		}

		gotScope, gotSubscope := Split(key)
		require.Equal(t, scope, gotScope)
		require.Equal(t, subscope, gotSubscope)
		require.False(t, strings.HasSuffix(key, Separator))
	})
}
