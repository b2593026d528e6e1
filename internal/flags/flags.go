// Package flags exposes the feature flags read from the "flags" config section.
// A Registry is read-only after New and answers false for anything it does not know.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/activesave/internal/log"
)

const (
	// FlagAllowDuplicateSubmissions lets a second persist on a form start a new
	// request while an earlier one is still in flight, instead of joining it.
	FlagAllowDuplicateSubmissions = "allow-duplicate-submissions"

	// FlagAwaitUnload makes unload wait, up to unload.timeout, for its
	// submissions to settle before the forms are dropped.
	FlagAwaitUnload = "await-unload"
)

// Known returns the flags activesave reads, in display order.
func Known() []string {
	return []string{FlagAllowDuplicateSubmissions, FlagAwaitUnload}
}

// Registry holds feature flag state.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a copy of the config map. Configured names
// that activesave does not read are logged once.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	for _, name := range r.Unknown() {
		log.Warn(log.CatConfig, "Ignoring unknown feature flag", "flag", name)
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled reports whether name is switched on. Nil registries and unknown
// flags report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Unknown returns configured flag names missing from Known, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	known := Known()
	var out []string
	for name := range r.flags {
		if !slices.Contains(known, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
