package autosave

import (
	"github.com/zjrosen/activesave/internal/fingerprint"
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/pubsub"
	"github.com/zjrosen/activesave/internal/registry"
)

// deferredValue is a cached value waiting for an async select to load its options.
type deferredValue struct {
	rec   *registry.Record
	ctrl  *form.Control
	name  string
	value any
}

// setField writes one cached value into rec's form. Callers hold s.mu.
func (s *Session) setField(rec *registry.Record, name string, value any) {
	controls := rec.Form.ByName(name)
	if len(controls) == 0 {
		rec.Form.AppendHidden(name, form.FormatValue(value))
		log.Debug(log.CatForm, "appended hidden field", "form", rec.ID, "name", name)
		return
	}

	text := form.FormatValue(value)
	for _, c := range controls {
		switch c.Kind() {
		case form.KindCheckbox:
			c.SetChecked(form.IsTrue(value))
		case form.KindRadio:
			current, _ := c.Value()
			c.SetChecked(current == text)
		case form.KindSelect:
			s.setSelect(rec, c, value, text)
		case form.KindHidden:
			if c.ShadowOf() != nil {
				// the fixed value of a checkbox shadow is what the server sees when unchecked
				continue
			}
			c.SetValue(text)
		case form.KindText, form.KindTextArea, form.KindButton:
			c.SetValue(text)
		}
	}
}

func (s *Session) setSelect(rec *registry.Record, c *form.Control, value any, text string) {
	want := []string{text}
	if c.Multiple() {
		want = form.Strings(value)
	}
	if selectHolds(c, value, want) {
		return
	}
	if !c.Async() || (c.Ready() && c.HasOption(want...)) {
		assignSelect(c, value)
		return
	}

	key := c.Key()
	prev, pending := s.deferred[key]
	pending = pending && prev.ctrl == c
	s.deferred[key] = &deferredValue{rec: rec, ctrl: c, name: c.Name(), value: value}
	log.Debug(log.CatForm, "deferred select value", "form", rec.ID, "control", key, "replaced", pending)
	if pending {
		return
	}
	c.OnReady(func() { s.applyDeferred(c, key) })
}

// selectHolds reports whether c already shows value.
func selectHolds(c *form.Control, value any, want []string) bool {
	if !c.Multiple() {
		current, ok := c.Value()
		return (ok && current == want[0]) || (!ok && value == nil)
	}
	current := c.Values()
	if len(current) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(current))
	for _, v := range current {
		seen[v] = true
	}
	for _, v := range want {
		if !seen[v] {
			return false
		}
	}
	return true
}

func assignSelect(c *form.Control, value any) {
	if c.Multiple() {
		c.SetValues(form.Strings(value))
		return
	}
	c.SetValue(form.FormatValue(value))
}

// applyDeferred runs from Control.SetOptions, which the session only calls
// while holding s.mu.
func (s *Session) applyDeferred(c *form.Control, key string) {
	d, ok := s.deferred[key]
	if !ok || d.ctrl != c {
		return
	}
	delete(s.deferred, key)
	rec := d.rec
	assignSelect(c, d.value)

	controlID := c.ID()
	if controlID == "" {
		controlID = key
	}
	s.broker.Publish(pubsub.AppendCompletedAsyncEvent, Signal{
		FormID:    rec.ID,
		Scope:     rec.Scope,
		Subscope:  rec.Subscope,
		ControlID: controlID,
	})
	rec.Fingerprint = fingerprint.Form(rec.Form)
	log.Debug(log.CatForm, "applied deferred select value", "form", rec.ID, "control", key)
}

// retargetDeferred moves pending values of a re-tracked form onto its new
// record. Values waiting on a form object that is no longer tracked are
// dropped.
func (s *Session) retargetDeferred(rec *registry.Record) {
	for key, d := range s.deferred {
		if d.rec.ID != rec.ID {
			continue
		}
		if d.rec.Form == rec.Form {
			d.rec = rec
			continue
		}
		delete(s.deferred, key)
	}
}

// dropDeferred forgets pending values for a form that is no longer tracked.
func (s *Session) dropDeferred(formID string) {
	for key, d := range s.deferred {
		if d.rec.ID == formID {
			delete(s.deferred, key)
		}
	}
}
