package form

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the control variant. Every switch over Kind in this module is
// exhaustive.
type Kind int

const (
	KindText Kind = iota
	KindHidden
	KindCheckbox
	KindRadio
	KindSelect
	KindTextArea
	KindButton // submit, reset, image, file and <button>: never serialized
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindHidden:
		return "hidden"
	case KindCheckbox:
		return "checkbox"
	case KindRadio:
		return "radio"
	case KindSelect:
		return "select"
	case KindTextArea:
		return "textarea"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

// Option is one choice of a select control.
type Option struct {
	Value string
	Label string
}

// Control is a named form field backed by its HTML node. Mutations update
// the node so a rendered document reflects the current state.
type Control struct {
	node *html.Node
	form *Form

	kind     Kind
	name     string
	id       string
	value    string
	checked  bool
	disabled bool

	options  []Option
	selected []int // option indices, ascending; at most one unless multiple
	multiple bool
	async    bool
	ready    bool
	onReady  []func()
	shadow   *Control
	shadowOf *Control
	detached bool
}

func newControl(f *Form, n *html.Node) (*Control, bool) {
	c := &Control{
		node:     n,
		form:     f,
		name:     attrOr(n, "name", ""),
		id:       attrOr(n, "id", ""),
		disabled: hasAttr(n, "disabled"),
		ready:    true,
	}

	switch n.DataAtom {
	case atom.Input:
		typ := strings.ToLower(attrOr(n, "type", "text"))
		c.value = attrOr(n, "value", "")
		switch typ {
		case "hidden":
			c.kind = KindHidden
		case "checkbox", "radio":
			c.kind = KindCheckbox
			if typ == "radio" {
				c.kind = KindRadio
			}
			c.value = attrOr(n, "value", "on")
			c.checked = hasAttr(n, "checked")
		case "submit", "button", "reset", "image", "file":
			c.kind = KindButton
		default:
			c.kind = KindText
		}
	case atom.Textarea:
		c.kind = KindTextArea
		c.value = textContent(n)
	case atom.Button:
		c.kind = KindButton
		c.value = attrOr(n, "value", "")
	case atom.Select:
		c.kind = KindSelect
		c.multiple = hasAttr(n, "multiple")
		c.async = isTrue(attrOr(n, "data-async-load", ""))
		c.ready = !c.async
		c.readOptions()
	default:
		return nil, false
	}
	return c, true
}

func isTrue(v string) bool {
	return v == "true" || v == "True"
}

func (c *Control) readOptions() {
	c.options = nil
	c.selected = nil
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if isElement(ch, atom.Option) {
				label := strings.Join(strings.Fields(textContent(ch)), " ")
				c.options = append(c.options, Option{Value: attrOr(ch, "value", label), Label: label})
				if hasAttr(ch, "selected") {
					c.choose(len(c.options) - 1)
				}
				continue
			}
			if isElement(ch, atom.Optgroup) {
				walk(ch)
			}
		}
	}
	walk(c.node)
	c.defaultSelection()
}

// choose selects option i; a single select drops its previous choice.
func (c *Control) choose(i int) {
	if !c.multiple {
		c.selected = []int{i}
		return
	}
	for _, j := range c.selected {
		if j == i {
			return
		}
	}
	c.selected = append(c.selected, i)
	sort.Ints(c.selected)
}

// defaultSelection picks the first option of a single select with nothing
// selected, as browsers do. Multiple selects may stay empty.
func (c *Control) defaultSelection() {
	if !c.multiple && len(c.selected) == 0 && len(c.options) > 0 {
		c.selected = []int{0}
	}
}

// Kind returns the control variant.
func (c *Control) Kind() Kind { return c.kind }

// Name returns the control's name attribute.
func (c *Control) Name() string { return c.name }

// ID returns the control's id attribute, which may be empty.
func (c *Control) ID() string { return c.id }

// Key identifies the control within a session: its id, or formID#name.
func (c *Control) Key() string {
	if c.id != "" {
		return c.id
	}
	return c.form.ID() + "#" + c.name
}

// Disabled reports whether the control carries the disabled attribute.
func (c *Control) Disabled() bool { return c.disabled }

// Required reports whether the control carries the required attribute.
func (c *Control) Required() bool { return hasAttr(c.node, "required") }

// Attr returns an arbitrary attribute of the control.
func (c *Control) Attr(key string) (string, bool) { return attr(c.node, key) }

// Checked reports the checked state of a checkbox or radio.
func (c *Control) Checked() bool { return c.checked }

// Shadow returns the hidden control emitted right after a checkbox with the
// same name, if any.
func (c *Control) Shadow() *Control { return c.shadow }

// ShadowOf returns the checkbox this hidden control shadows, if any.
func (c *Control) ShadowOf() *Control { return c.shadowOf }

// Multiple reports whether a select accepts several selected options.
func (c *Control) Multiple() bool { return c.multiple }

// Async reports whether a select's options are populated asynchronously.
func (c *Control) Async() bool { return c.async }

// Ready reports whether a select's options have been loaded.
func (c *Control) Ready() bool { return c.ready }

// Options returns a copy of a select's options.
func (c *Control) Options() []Option {
	return append([]Option(nil), c.options...)
}

// HasOption reports whether a select offers every one of values.
func (c *Control) HasOption(values ...string) bool {
	for _, v := range values {
		found := false
		for _, o := range c.options {
			if o.Value == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Values returns the values of a select's selected options in option order.
func (c *Control) Values() []string {
	if c.kind != KindSelect {
		return nil
	}
	out := make([]string, 0, len(c.selected))
	for _, i := range c.selected {
		out = append(out, c.options[i].Value)
	}
	return out
}

// Value returns the current value. For a select it is the first selected
// option; without one it returns "" and ok is false.
func (c *Control) Value() (string, bool) {
	switch c.kind {
	case KindSelect:
		if len(c.selected) == 0 {
			return "", false
		}
		return c.options[c.selected[0]].Value, true
	case KindText, KindHidden, KindCheckbox, KindRadio, KindTextArea, KindButton:
		return c.value, true
	default:
		return "", false
	}
}

// SetValue assigns a value. On a select it selects the matching option, or
// clears the selection when no option matches. On checkboxes and radios it
// rewrites the value attribute, not the checked state.
func (c *Control) SetValue(v string) {
	switch c.kind {
	case KindSelect:
		c.selected = nil
		for i, o := range c.options {
			if o.Value == v {
				c.selected = []int{i}
				break
			}
		}
		c.syncSelected()
	case KindTextArea:
		c.value = v
		setTextContent(c.node, v)
	case KindText, KindHidden, KindCheckbox, KindRadio, KindButton:
		c.value = v
		setAttr(c.node, "value", v)
	}
}

// SetValues selects exactly the options whose values appear in values. A
// single select keeps only the first match. Values no option offers are
// ignored.
func (c *Control) SetValues(values []string) {
	if c.kind != KindSelect {
		return
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	c.selected = nil
	for i, o := range c.options {
		if !want[o.Value] {
			continue
		}
		c.choose(i)
		if !c.multiple {
			break
		}
	}
	c.syncSelected()
}

// SetChecked sets the checked state of a checkbox or radio. Checking a radio
// unchecks the other radios of the same name.
func (c *Control) SetChecked(checked bool) {
	switch c.kind {
	case KindCheckbox:
		c.checked = checked
		toggleAttr(c.node, "checked", checked)
	case KindRadio:
		if checked && c.form != nil {
			for _, other := range c.form.ByName(c.name) {
				if other != c && other.kind == KindRadio && other.checked {
					other.checked = false
					toggleAttr(other.node, "checked", false)
				}
			}
		}
		c.checked = checked
		toggleAttr(c.node, "checked", checked)
	case KindText, KindHidden, KindSelect, KindTextArea, KindButton:
	}
}

// SetOptions replaces a select's options and marks it ready. The current
// selection is kept when still offered. Pending OnReady listeners fire once.
func (c *Control) SetOptions(options []Option) {
	if c.kind != KindSelect {
		return
	}
	current := make(map[string]bool)
	for _, v := range c.Values() {
		current[v] = true
	}

	for ch := c.node.FirstChild; ch != nil; {
		next := ch.NextSibling
		c.node.RemoveChild(ch)
		ch = next
	}
	c.options = append([]Option(nil), options...)
	c.selected = nil
	for i, o := range c.options {
		opt := element(atom.Option, html.Attribute{Key: "value", Val: o.Value})
		label := o.Label
		if label == "" {
			label = o.Value
		}
		opt.AppendChild(&html.Node{Type: html.TextNode, Data: label})
		c.node.AppendChild(opt)
		if current[o.Value] && (c.multiple || len(c.selected) == 0) {
			c.choose(i)
		}
	}
	c.defaultSelection()
	c.syncSelected()
	c.ready = true

	fns := c.onReady
	c.onReady = nil
	for _, fn := range fns {
		fn()
	}
}

// OnReady registers a one-shot listener fired by the next SetOptions call.
func (c *Control) OnReady(fn func()) {
	c.onReady = append(c.onReady, fn)
}

func (c *Control) syncSelected() {
	chosen := make(map[int]bool, len(c.selected))
	for _, j := range c.selected {
		chosen[j] = true
	}
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if isElement(ch, atom.Option) {
				toggleAttr(ch, "selected", chosen[i])
				i++
				continue
			}
			if isElement(ch, atom.Optgroup) {
				walk(ch)
			}
		}
	}
	walk(c.node)
}
