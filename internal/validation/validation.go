// Package validation decides whether a form may be submitted.
//
// The autosave session treats a Validator as an opaque gate: any non-nil
// error aborts the submission attempt.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/zjrosen/activesave/internal/cachemanager"
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/log"
)

// RuleAttr holds a boolean expression a control's value must satisfy.
const RuleAttr = "data-rule"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("form is invalid")

// Validator checks a form before submission.
type Validator interface {
	Validate(f *form.Form) error
}

// FieldError reports one failing control.
type FieldError struct {
	Name string
	// Rule is "required" or the data-rule expression that failed.
	Rule string
	// Err is set when the rule could not be compiled or evaluated.
	Err error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: rule %q: %v", e.Name, e.Rule, e.Err)
	}
	return fmt.Sprintf("field %q fails %s", e.Name, e.Rule)
}

// Unwrap exposes ErrInvalid, and the evaluation error when there is one.
func (e *FieldError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

type none struct{}

func (none) Validate(*form.Form) error { return nil }

// None accepts every form.
var None Validator = none{}

// Rules enforces HTML required attributes and data-rule expressions.
type Rules struct {
	programs *cachemanager.Cache[string, *exprvm.Program]
}

var _ Validator = (*Rules)(nil)

// NewRules creates a Rules validator with an empty program cache.
func NewRules() *Rules {
	return &Rules{
		programs: cachemanager.New[string, *exprvm.Program]("validation-programs", cachemanager.DefaultTTL, cachemanager.WithSliding()),
	}
}

// Validate returns nil, or every FieldError joined together.
func (r *Rules) Validate(f *form.Form) error {
	fields := make(map[string]string)
	for _, field := range f.Fields() {
		fields[field.Name] = field.Value
	}

	var errs []error
	radioGroups := make(map[string]bool)
	for _, c := range f.Controls() {
		if c.Disabled() || c.Name() == "" {
			continue
		}
		if c.Required() && !satisfied(f, c, radioGroups) {
			errs = append(errs, &FieldError{Name: c.Name(), Rule: "required"})
		}
		if rule, ok := c.Attr(RuleAttr); ok && strings.TrimSpace(rule) != "" {
			if err := r.check(c, rule, fields); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		log.Debug(log.CatForm, "form failed validation", "form", f.ID(), "failures", len(errs))
	}
	return errors.Join(errs...)
}

func satisfied(f *form.Form, c *form.Control, radioGroups map[string]bool) bool {
	switch c.Kind() {
	case form.KindCheckbox:
		return c.Checked()
	case form.KindRadio:
		if done, seen := radioGroups[c.Name()]; seen {
			return done
		}
		done := false
		for _, other := range f.ByName(c.Name()) {
			if other.Kind() == form.KindRadio && other.Checked() {
				done = true
				break
			}
		}
		radioGroups[c.Name()] = done
		return done
	case form.KindSelect, form.KindText, form.KindHidden, form.KindTextArea, form.KindButton:
		v, ok := c.Value()
		return ok && v != ""
	default:
		return true
	}
}

func (r *Rules) check(c *form.Control, rule string, fields map[string]string) error {
	program, err := r.loadOrCompile(rule)
	if err != nil {
		return &FieldError{Name: c.Name(), Rule: rule, Err: err}
	}
	value, _ := c.Value()
	env := map[string]any{
		"value":   value,
		"checked": c.Checked(),
		"name":    c.Name(),
		"fields":  fields,
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return &FieldError{Name: c.Name(), Rule: rule, Err: err}
	}
	ok, isBool := out.(bool)
	if !isBool {
		return &FieldError{Name: c.Name(), Rule: rule, Err: fmt.Errorf("rule returned %T, want bool", out)}
	}
	if !ok {
		return &FieldError{Name: c.Name(), Rule: rule}
	}
	return nil
}

func (r *Rules) loadOrCompile(rule string) (*exprvm.Program, error) {
	return r.programs.Fetch(context.Background(), rule, func(context.Context) (*exprvm.Program, error) {
		program, err := exprlang.Compile(rule,
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		)
		if err != nil {
			return nil, fmt.Errorf("compiling rule: %w", err)
		}
		return program, nil
	})
}
