package form

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Field is one name/value pair of a serialized form.
type Field struct {
	Name  string
	Value string
}

// Fields returns the successful controls' name/value pairs in document order.
// Unnamed, disabled and button controls are skipped, as are unchecked
// checkboxes and radios and selects without a selection.
func (f *Form) Fields() []Field {
	var out []Field
	for _, c := range f.Controls() {
		if c.name == "" || c.disabled {
			continue
		}
		var (
			v  string
			ok bool
		)
		switch c.kind {
		case KindCheckbox, KindRadio:
			v, ok = c.value, c.checked
		case KindSelect:
			// one pair per selected option
			for _, sv := range c.Values() {
				out = append(out, Field{Name: c.name, Value: normalizeNewlines(sv)})
			}
		case KindText, KindHidden, KindTextArea:
			v, ok = c.value, true
		case KindButton:
		}
		if !ok {
			continue
		}
		out = append(out, Field{Name: c.name, Value: normalizeNewlines(v)})
	}
	return out
}

// Serialize encodes Fields as application/x-www-form-urlencoded, keeping
// document order.
func (f *Form) Serialize() string {
	fields := f.Fields()
	parts := make([]string, 0, len(fields))
	for _, fld := range fields {
		parts = append(parts, url.QueryEscape(fld.Name)+"="+url.QueryEscape(fld.Value))
	}
	return strings.Join(parts, "&")
}

func normalizeNewlines(v string) string {
	if !strings.ContainsRune(v, '\n') {
		return v
	}
	v = strings.ReplaceAll(v, "\r\n", "\n")
	return strings.ReplaceAll(v, "\n", "\r\n")
}

// Snapshot maps each named control to the value the autosave cache stores for
// it. Hidden controls are visited first so a same-named visible control, such
// as a checkbox with a shadow, overwrites the hidden value. Checkboxes store
// their checked state, selects without a selection store nil, multiple
// selects store the list of selected values, and radios contribute only when
// checked.
func (f *Form) Snapshot() map[string]any {
	controls := f.Controls()
	sort.SliceStable(controls, func(i, j int) bool {
		return controls[i].kind == KindHidden && controls[j].kind != KindHidden
	})

	values := make(map[string]any, len(controls))
	for _, c := range controls {
		if c.name == "" {
			continue
		}
		switch c.kind {
		case KindCheckbox:
			values[c.name] = c.checked
		case KindRadio:
			if c.checked {
				values[c.name] = c.value
			}
		case KindSelect:
			switch vs := c.Values(); {
			case len(vs) == 0:
				values[c.name] = nil
			case c.multiple:
				values[c.name] = vs
			default:
				values[c.name] = vs[0]
			}
		case KindText, KindHidden, KindTextArea:
			values[c.name] = c.value
		case KindButton:
		}
	}
	return values
}

// FormatValue renders a cached value as control text: nil is empty, bools are
// "true"/"false", JSON numbers use their shortest form and lists are joined
// with commas.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string, []any:
		return strings.Join(Strings(val), ",")
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Strings reads a cached value as a list of option values: nil is empty, a
// list yields its formatted elements and anything else a single element.
func Strings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, FormatValue(e))
		}
		return out
	default:
		return []string{FormatValue(val)}
	}
}

// IsTrue reports whether a cached value checks a checkbox: true, "true" or "True".
func IsTrue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return isTrue(val)
	default:
		return false
	}
}
