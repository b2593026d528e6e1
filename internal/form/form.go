// Package form models HTML forms for autosave: parsing a document into forms
// and named controls, mutating control state, and serializing field values the
// way a browser-side form serializer does.
package form

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SubscopeAttr is the form attribute declaring the cache subscope.
const SubscopeAttr = "data-activesave-subscope"

// ErrNoForm is returned by ParseForm when the markup has no form element.
var ErrNoForm = errors.New("no form element found")

// Document is a parsed HTML document and the forms it contains.
type Document struct {
	root  *html.Node
	forms []*Form
}

// ParseDocument parses HTML and collects every form in document order.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	doc := &Document{root: root}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isElement(n, atom.Form) {
			doc.forms = append(doc.forms, newForm(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return doc, nil
}

// ParseForm parses HTML and returns its first form.
func ParseForm(r io.Reader) (*Form, error) {
	doc, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}
	if len(doc.forms) == 0 {
		return nil, ErrNoForm
	}
	return doc.forms[0], nil
}

// MustParseForm is ParseForm over a string, panicking on error.
func MustParseForm(markup string) *Form {
	f, err := ParseForm(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return f
}

// Forms returns the document's forms.
func (d *Document) Forms() []*Form {
	return append([]*Form(nil), d.forms...)
}

// Form returns the form with the given id.
func (d *Document) Form(id string) (*Form, bool) {
	for _, f := range d.forms {
		if f.ID() == id {
			return f, true
		}
	}
	return nil, false
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Form is a form element and its controls in document order.
type Form struct {
	node     *html.Node
	controls []*Control
	detached []detachment
}

type detachment struct {
	control *Control
	parent  *html.Node
	next    *html.Node
}

func newForm(n *html.Node) *Form {
	f := &Form{node: n}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if ctrl, ok := newControl(f, c); ok {
				f.controls = append(f.controls, ctrl)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	f.linkShadows()
	return f
}

// linkShadows pairs each checkbox with the same-named hidden control that
// immediately follows it.
func (f *Form) linkShadows() {
	for i := 0; i+1 < len(f.controls); i++ {
		c, next := f.controls[i], f.controls[i+1]
		if c.kind == KindCheckbox && next.kind == KindHidden && c.name != "" && c.name == next.name {
			c.shadow = next
			next.shadowOf = c
		}
	}
}

// ID returns the form's id attribute.
func (f *Form) ID() string { return attrOr(f.node, "id", "") }

// Action returns the raw action attribute.
func (f *Form) Action() string { return attrOr(f.node, "action", "") }

// Method returns the raw method attribute.
func (f *Form) Method() string { return attrOr(f.node, "method", "") }

// Subscope returns the declared cache subscope, or "".
func (f *Form) Subscope() string { return attrOr(f.node, SubscopeAttr, "") }

// Attr returns an arbitrary attribute of the form element.
func (f *Form) Attr(key string) (string, bool) { return attr(f.node, key) }

// Controls returns the attached controls in document order.
func (f *Form) Controls() []*Control {
	out := make([]*Control, 0, len(f.controls))
	for _, c := range f.controls {
		if !c.detached {
			out = append(out, c)
		}
	}
	return out
}

// ByName returns the attached controls with the given name in document order.
func (f *Form) ByName(name string) []*Control {
	var out []*Control
	for _, c := range f.controls {
		if !c.detached && c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// Control returns the attached control with the given id.
func (f *Form) Control(id string) (*Control, bool) {
	for _, c := range f.controls {
		if !c.detached && c.id == id {
			return c, true
		}
	}
	return nil, false
}

// AppendHidden adds a hidden input with name and value as the form's last child.
func (f *Form) AppendHidden(name, value string) *Control {
	n := element(atom.Input,
		html.Attribute{Key: "type", Val: "hidden"},
		html.Attribute{Key: "name", Val: name},
		html.Attribute{Key: "value", Val: value},
	)
	f.node.AppendChild(n)
	c, _ := newControl(f, n)
	f.controls = append(f.controls, c)
	return c
}

// Detach removes a control from the tree, remembering where it was.
func (f *Form) Detach(c *Control) {
	if c.detached || c.form != f || c.node.Parent == nil {
		return
	}
	f.detached = append(f.detached, detachment{control: c, parent: c.node.Parent, next: c.node.NextSibling})
	c.node.Parent.RemoveChild(c.node)
	c.detached = true
}

// Reattach restores every detached control to its original position.
func (f *Form) Reattach() {
	for i := len(f.detached) - 1; i >= 0; i-- {
		d := f.detached[i]
		d.parent.InsertBefore(d.control.node, d.next)
		d.control.detached = false
	}
	f.detached = nil
}

// Render writes the form element as HTML.
func (f *Form) Render(w io.Writer) error {
	return html.Render(w, f.node)
}

// HTML returns the rendered form element.
func (f *Form) HTML() string {
	var b bytes.Buffer
	_ = f.Render(&b)
	return b.String()
}
