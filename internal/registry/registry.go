// Package registry holds the table of tracked forms.
//
// A Registry is not safe for concurrent use; the owning autosave session
// serializes access to it.
package registry

import (
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/keys"
)

// PreSubmitFunc gates a submission attempt. Returning false aborts it.
type PreSubmitFunc func(f *form.Form) bool

// Record is the registration of one tracked form.
type Record struct {
	ID       string
	Scope    string
	Subscope string
	// Form is not owned by the record; the caller controls its lifetime.
	Form        *form.Form
	Fingerprint string
	// Dirty is sticky: once set by a push it stays set until a successful submission.
	Dirty     bool
	PreSubmit PreSubmitFunc
}

// Key returns the cache namespace the record reads and writes.
func (r *Record) Key() string {
	return keys.Derive(r.Scope, r.Subscope)
}

// AllowSubmit runs the pre-submit hook. A nil hook always allows.
func (r *Record) AllowSubmit() bool {
	if r.PreSubmit == nil {
		return true
	}
	return r.PreSubmit(r.Form)
}

// Registry maps form ids to records and remembers registration order.
type Registry struct {
	records map[string]*Record
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Put registers rec under rec.ID, replacing any previous record for that id.
// A replaced record keeps its original position.
func (r *Registry) Put(rec *Record) {
	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec
}

// Get returns the record for id.
func (r *Registry) Get(id string) (*Record, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// Delete drops the record for id. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	if _, ok := r.records[id]; !ok {
		return
	}
	delete(r.records, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of tracked forms.
func (r *Registry) Len() int {
	return len(r.records)
}

// All returns every record in registration order.
func (r *Registry) All() []*Record {
	out := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Resolve turns a target list into records. No ids selects every record.
// Unknown ids are skipped and repeated ids collapse to one record, in the
// order they were first named.
func (r *Registry) Resolve(ids ...string) []*Record {
	if len(ids) == 0 {
		return r.All()
	}
	seen := make(map[string]bool, len(ids))
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := r.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// IDs returns the tracked form ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
