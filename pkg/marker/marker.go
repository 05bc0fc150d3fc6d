// Package marker parses and evaluates PEP 508 environment markers.
//
// Grammar (with pip's relaxation that and/or chain without parentheses):
//
//	marker      = marker_or
//	marker_or   = marker_and ('or' marker_and)*
//	marker_and  = marker_expr ('and' marker_expr)*
//	marker_expr = marker_var marker_op marker_var | '(' marker ')'
//	marker_var  = env_var | python_str
//	marker_op   = '<=' | '<' | '!=' | '==' | '>=' | '>' | '~=' | '===' | 'in' | 'not' 'in'
//
// Variable names are checked at parse time: an unknown name is a
// MARKER_ERROR and the marker is never evaluated. Evaluation itself is pure.
package marker

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Marker is a parsed environment marker. A nil *Marker always evaluates to true.
type Marker struct {
	root node
}

// Parse parses a marker expression.
func Parse(expr string) (*Marker, error) {
	p := &parser{input: expr}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipWsp()
	if p.pos < len(p.input) {
		return nil, p.errorf("unexpected trailing input")
	}
	return &Marker{root: n}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) *Marker {
	m, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Evaluate parses expr and evaluates it against env with no extras requested.
func Evaluate(expr string, env Environment) (bool, error) {
	m, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return m.Evaluate(env, nil), nil
}

// Evaluate reports whether the marker holds in env. extras holds the
// normalized names of the extras being requested; "extra == 'x'" is true
// only if x is among them.
func (m *Marker) Evaluate(env Environment, extras []string) bool {
	if m == nil {
		return true
	}
	return m.root.eval(env, extras)
}

// String renders the marker in normalized form.
func (m *Marker) String() string {
	if m == nil {
		return ""
	}
	return m.root.String()
}

// Extras returns the sorted extra names the marker compares against.
func (m *Marker) Extras() []string {
	if m == nil {
		return nil
	}
	var out []string
	m.root.walk(func(e expr) {
		if name, ok := e.extraName(); ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	})
	slices.Sort(out)
	return out
}

// And returns a marker that holds when both m and o hold. A nil operand
// is treated as always true.
func And(m, o *Marker) *Marker {
	switch {
	case m == nil:
		return o
	case o == nil:
		return m
	case m.String() == o.String():
		return m
	}
	return &Marker{root: and{m.root, o.root}}
}

// Or returns a marker that holds when either m or o holds. A nil operand
// is always true, so the result is nil.
func Or(m, o *Marker) *Marker {
	if m == nil || o == nil {
		return nil
	}
	if m.String() == o.String() {
		return m
	}
	return &Marker{root: or{m.root, o.root}}
}

// WithoutExtras returns m with every "extra" comparison treated as true.
// It turns the marker of a dependency selected through an extra into the
// condition that remains once the extra is known to be requested. The
// result is nil when nothing but extra comparisons is left, or when the
// remainder is always true.
func (m *Marker) WithoutExtras() *Marker {
	if m == nil {
		return nil
	}
	n, ok := stripExtras(m.root)
	if !ok {
		return nil
	}
	return &Marker{root: n}
}

// stripExtras reports false when n reduces to true.
func stripExtras(n node) (node, bool) {
	switch n := n.(type) {
	case and:
		l, lok := stripExtras(n.left)
		r, rok := stripExtras(n.right)
		switch {
		case !lok:
			return r, rok
		case !rok:
			return l, true
		}
		return and{l, r}, true
	case or:
		l, lok := stripExtras(n.left)
		r, rok := stripExtras(n.right)
		if !lok || !rok {
			return nil, false
		}
		return or{l, r}, true
	case expr:
		if _, ok := n.extraName(); ok {
			return nil, false
		}
	}
	return n, true
}

type node interface {
	eval(env Environment, extras []string) bool
	walk(fn func(expr))
	String() string
}

type or struct{ left, right node }

func (n or) eval(env Environment, extras []string) bool {
	return n.left.eval(env, extras) || n.right.eval(env, extras)
}

func (n or) walk(fn func(expr)) { n.left.walk(fn); n.right.walk(fn) }

func (n or) String() string { return n.left.String() + " or " + n.right.String() }

type and struct{ left, right node }

func (n and) eval(env Environment, extras []string) bool {
	return n.left.eval(env, extras) && n.right.eval(env, extras)
}

func (n and) walk(fn func(expr)) { n.left.walk(fn); n.right.walk(fn) }

func (n and) String() string { return group(n.left) + " and " + group(n.right) }

// group parenthesizes or-nodes nested under and.
func group(n node) string {
	if _, ok := n.(or); ok {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// operand is either a variable reference or a string literal.
type operand struct {
	name  string // set for variables
	value string // set for literals
}

func (o operand) resolve(env Environment) string {
	if o.name == "" {
		return o.value
	}
	v, _ := env.Lookup(o.name)
	return v
}

func (o operand) String() string {
	if o.name != "" {
		return o.name
	}
	return fmt.Sprintf("%q", o.value)
}

type expr struct {
	op          string
	left, right operand
}

func (e expr) walk(fn func(expr)) { fn(e) }

func (e expr) String() string {
	return e.left.String() + " " + e.op + " " + e.right.String()
}

// extraName returns the literal an "extra" comparison tests for.
func (e expr) extraName() (string, bool) {
	switch {
	case e.left.name == "extra" && e.right.name == "":
		return normalizeExtra(e.right.value), true
	case e.right.name == "extra" && e.left.name == "":
		return normalizeExtra(e.left.value), true
	}
	return "", false
}

func (e expr) eval(env Environment, extras []string) bool {
	if name, ok := e.extraName(); ok {
		has := slices.Contains(extras, name)
		if e.op == "!=" {
			return !has
		}
		return has
	}
	l, r := e.left.resolve(env), e.right.resolve(env)

	switch e.op {
	case "in":
		return strings.Contains(r, l)
	case "not in":
		return !strings.Contains(r, l)
	case "===":
		return l == r
	}

	// Prefer a PEP 440 comparison when both sides are versions.
	if lv, err := version.Parse(l); err == nil {
		if spec, err := version.ParseSpecifier(e.op + r); err == nil {
			return spec.Contains(lv, true)
		}
	}
	switch e.op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	// ~= is only defined on versions.
	return false
}

func normalizeExtra(s string) string {
	return strings.NewReplacer("_", "-", ".", "-").Replace(strings.ToLower(strings.TrimSpace(s)))
}

func unknownVariable(name string) error {
	return errors.New(errors.ErrCodeMarker, "unknown marker variable %q", name)
}
