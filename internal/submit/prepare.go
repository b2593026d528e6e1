// Package submit turns a tracked form into a network request and interprets
// the server's reply.
package submit

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/log"
)

// Request is a prepared, serialized form submission.
type Request struct {
	FormID string
	// Method is upper-cased and defaults to GET.
	Method string
	Action string
	// Payload is the application/x-www-form-urlencoded form body.
	Payload string
}

// Prepare resolves the form's method and action and serializes it with
// shadow controls removed. The form's tree is left exactly as it was found.
func Prepare(f *form.Form) (Request, error) {
	method := strings.ToUpper(strings.TrimSpace(f.Method()))
	if method == "" {
		method = "GET"
	}
	action := strings.TrimSpace(f.Action())
	if _, err := url.Parse(action); err != nil {
		return Request{}, fmt.Errorf("form %s has an invalid action: %w", f.ID(), err)
	}

	shadows := Shadows(f)
	for _, c := range shadows {
		f.Detach(c)
	}
	payload := f.Serialize()
	f.Reattach()

	if len(shadows) > 0 {
		log.Debug(log.CatSubmit, "stripped shadow controls", "form", f.ID(), "count", len(shadows))
	}
	return Request{FormID: f.ID(), Method: method, Action: action, Payload: payload}, nil
}

// Shadows returns the hidden controls that would duplicate a more
// authoritative value for the same name. Hidden controls are examined in
// document order and a hidden is a shadow when its name is shared by
//
//   - a control that is neither hidden nor a checkbox,
//   - a checked checkbox, or
//   - another hidden control that has not been picked as a shadow.
//
// The last same-named hidden therefore survives when only hiddens share a name.
func Shadows(f *form.Form) []*form.Control {
	controls := f.Controls()
	picked := make(map[*form.Control]bool)
	var out []*form.Control

	for _, h := range controls {
		if h.Kind() != form.KindHidden || h.Name() == "" {
			continue
		}
		visible, checked, hiddens := false, false, 0
		for _, c := range controls {
			if c.Name() != h.Name() {
				continue
			}
			switch c.Kind() {
			case form.KindHidden:
				if !picked[c] {
					hiddens++
				}
			case form.KindCheckbox:
				if c.Checked() {
					checked = true
				}
			case form.KindText, form.KindRadio, form.KindSelect, form.KindTextArea, form.KindButton:
				visible = true
			}
		}
		if visible || checked || hiddens > 1 {
			picked[h] = true
			out = append(out, h)
		}
	}
	return out
}
