package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/activesave/internal/form"
)

func ids(records []*Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func TestRecord_Key(t *testing.T) {
	require.Equal(t, "global", (&Record{}).Key())
	require.Equal(t, "user42", (&Record{Scope: "user42"}).Key())
	require.Equal(t, "user42::profile", (&Record{Scope: "user42", Subscope: "profile"}).Key())
	require.Equal(t, "global::profile", (&Record{Subscope: "profile"}).Key())
}

func TestRecord_AllowSubmit(t *testing.T) {
	f := form.MustParseForm(`<form id="f1"><input name="a" value="1"></form>`)

	require.True(t, (&Record{Form: f}).AllowSubmit(), "nil hook allows")

	var seen *form.Form
	rec := &Record{Form: f, PreSubmit: func(got *form.Form) bool {
		seen = got
		return false
	}}
	require.False(t, rec.AllowSubmit())
	require.Same(t, f, seen)
}

func TestRegistry_PutGetDelete(t *testing.T) {
	r := New()
	r.Put(&Record{ID: "f1"})
	r.Put(&Record{ID: "f2"})
	require.Equal(t, 2, r.Len())

	rec, ok := r.Get("f1")
	require.True(t, ok)
	require.Equal(t, "f1", rec.ID)

	r.Delete("f1")
	r.Delete("missing")
	_, ok = r.Get("f1")
	require.False(t, ok)
	require.Equal(t, []string{"f2"}, r.IDs())
}

func TestRegistry_PutReplacesInPlace(t *testing.T) {
	r := New()
	r.Put(&Record{ID: "f1", Scope: "a"})
	r.Put(&Record{ID: "f2"})
	r.Put(&Record{ID: "f1", Scope: "b"})

	require.Equal(t, 2, r.Len())
	require.Equal(t, []string{"f1", "f2"}, ids(r.All()))
	rec, _ := r.Get("f1")
	require.Equal(t, "b", rec.Scope)
}

func TestRegistry_Resolve(t *testing.T) {
	r := New()
	for _, id := range []string{"f1", "f2", "f3"} {
		r.Put(&Record{ID: id})
	}

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "no ids means all", in: nil, want: []string{"f1", "f2", "f3"}},
		{name: "subset keeps argument order", in: []string{"f3", "f1"}, want: []string{"f3", "f1"}},
		{name: "unknown ids ignored", in: []string{"nope", "f2"}, want: []string{"f2"}},
		{name: "duplicates collapse", in: []string{"f2", "f2", "f1", "f2"}, want: []string{"f2", "f1"}},
		{name: "only unknown", in: []string{"nope"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ids(r.Resolve(tt.in...)))
		})
	}
}

func TestRegistry_ResolveProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tracked := rapid.SliceOfDistinct(rapid.StringMatching(`f[0-9]{1,2}`), rapid.ID[string]).Draw(t, "tracked")
		r := New()
		for _, id := range tracked {
			r.Put(&Record{ID: id})
		}
		targets := rapid.SliceOf(rapid.StringMatching(`f[0-9]{1,2}`)).Draw(t, "targets")

		got := r.Resolve(targets...)
		seen := map[string]bool{}
		for _, rec := range got {
			if seen[rec.ID] {
				t.Fatalf("record %s resolved twice", rec.ID)
			}
			seen[rec.ID] = true
			if _, ok := r.Get(rec.ID); !ok {
				t.Fatalf("resolved untracked id %s", rec.ID)
			}
		}
		if len(targets) == 0 && len(got) != r.Len() {
			t.Fatalf("empty target list resolved %d of %d records", len(got), r.Len())
		}
	})
}
