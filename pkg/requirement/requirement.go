// Package requirement models PEP 508 dependency specifications.
//
// A [Requirement] names a package, a version specifier, optional extras, an
// optional environment marker and an optional explicit [Source]. Two
// requirements describe the same resolution slot when their [Key] is equal:
// the normalized package name plus the requested extras.
package requirement

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"deps.dev/util/pypi"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Key identifies a resolution slot: one package, optionally with extras.
// "requests" and "requests[socks]" are distinct keys; the latter depends on
// the former pinned to the same version.
type Key struct {
	Name   string
	Extras string // sorted, comma-joined normalized extras
}

func (k Key) String() string {
	if k.Extras == "" {
		return k.Name
	}
	return k.Name + "[" + k.Extras + "]"
}

// Base returns the key without extras.
func (k Key) Base() Key { return Key{Name: k.Name} }

// ExtraList splits the extras back into a slice.
func (k Key) ExtraList() []string {
	if k.Extras == "" {
		return nil
	}
	return strings.Split(k.Extras, ",")
}

// Identifier is anything that can be keyed into a resolution slot.
type Identifier interface {
	Key() Key
}

// Versioned is the view of a candidate that requirements match against.
type Versioned interface {
	Identifier
	Version() version.Version
	Source() *Source
}

// Requirement is a parsed dependency specification.
type Requirement struct {
	Name      string            // normalized (PEP 503) package name
	Extras    []string          // sorted normalized extras
	Specifier version.Specifier // zero value matches any version
	Marker    *marker.Marker    // nil means unconditional
	Source    *Source           // nil means resolve from an index

	// ForExtras records the parent's extras this requirement was selected
	// under, so extra-gated markers still evaluate true later on.
	ForExtras []string
}

// Parser parses requirements with an optional shared version cache.
// BaseDir anchors relative path sources.
type Parser struct {
	Versions *version.Cache
	BaseDir  string
}

// Parse parses a requirement with a zero Parser.
func Parse(s string) (*Requirement, error) {
	return Parser{}.Parse(s)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Requirement {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// directRefRE matches the "name[extras] @" prefix of a direct reference.
var directRefRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*@\s*`)

// Parse parses one PEP 508 requirement string.
func (p Parser) Parse(s string) (*Requirement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New(errors.ErrCodeParse, "empty requirement")
	}
	if m := directRefRE.FindStringSubmatchIndex(s); m != nil {
		return p.parseDirect(s, m)
	}

	dep, err := pypi.ParseDependency(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", s)
	}
	r := &Requirement{Name: dep.Name, Extras: splitExtras(dep.Extras)}
	if err := errors.ValidatePythonPackageName(r.Name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", s)
	}
	if r.Specifier, err = p.Versions.ParseSpecifier(dep.Constraint); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", s)
	}
	if dep.Environment != "" {
		if r.Marker, err = marker.Parse(dep.Environment); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (p Parser) parseDirect(s string, m []int) (*Requirement, error) {
	name := pypi.CanonPackageName(s[m[2]:m[3]])
	r := &Requirement{Name: name}
	if m[4] >= 0 {
		r.Extras = splitExtras(strings.Trim(s[m[4]:m[5]], "[]"))
	}
	if err := errors.ValidatePythonPackageName(name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", s)
	}

	rest := s[m[1]:]
	// PEP 508 requires whitespace before the marker separator so that a
	// ";" inside the URL is not mistaken for one.
	ref, env := rest, ""
	if i := strings.Index(rest, " ;"); i >= 0 {
		ref, env = rest[:i], strings.TrimSpace(rest[i+2:])
	}
	src, err := ParseSource(ref, p.BaseDir)
	if err != nil {
		return nil, err
	}
	r.Source = &src
	if env != "" {
		if r.Marker, err = marker.Parse(env); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func splitExtras(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = NormalizeExtra(e)
		if e != "" && !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// NormalizeExtra normalizes an extra name the same way package names are.
func NormalizeExtra(s string) string {
	return pypi.CanonPackageName(strings.TrimSpace(s))
}

// NormalizeName returns the PEP 503 normalized form of a package name.
func NormalizeName(s string) string {
	return pypi.CanonPackageName(strings.TrimSpace(s))
}

// Key returns the resolution slot of r.
func (r *Requirement) Key() Key {
	return Key{Name: r.Name, Extras: strings.Join(r.Extras, ",")}
}

// String renders r in normalized PEP 508 form.
func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(r.Extras, ","))
	}
	if r.Source != nil {
		b.WriteString(" @ ")
		b.WriteString(r.Source.String())
		if r.Marker != nil {
			b.WriteString(" ")
		}
	} else if !r.Specifier.IsAny() {
		b.WriteString(r.Specifier.String())
	}
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}

// Applies reports whether r's marker holds in env.
func (r *Requirement) Applies(env marker.Environment) bool {
	return r.Marker.Evaluate(env, r.ForExtras)
}

// Matches reports whether c satisfies r in env: the marker holds and the
// candidate matches by name, version and source.
func (r *Requirement) Matches(c Versioned, env marker.Environment) bool {
	return r.Applies(env) && r.MatchesCandidate(c)
}

// MatchesCandidate checks name, source and version, ignoring the marker.
// Pre-releases are accepted here; the pre-release policy applies when
// candidates are listed, not when a chosen candidate is re-checked.
func (r *Requirement) MatchesCandidate(c Versioned) bool {
	if c.Key().Name != r.Name {
		return false
	}
	if r.Source != nil {
		src := c.Source()
		if src == nil || !r.Source.Same(*src) {
			return false
		}
		if r.Specifier.IsAny() {
			return true
		}
	}
	return r.Specifier.Contains(c.Version(), true)
}

// Merge combines two requirements on the same key: version ranges are
// intersected and markers are joined with AND. It fails with a
// *ConflictError when the ranges are disjoint or the sources differ.
func (r *Requirement) Merge(o *Requirement) (*Requirement, error) {
	if r.Key() != o.Key() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cannot merge %s with %s", r.Key(), o.Key())
	}
	out := &Requirement{
		Name:      r.Name,
		Extras:    r.Extras,
		Marker:    marker.And(r.Marker, o.Marker),
		Source:    r.Source,
		ForExtras: mergeExtras(r.ForExtras, o.ForExtras),
	}
	switch {
	case r.Source == nil:
		out.Source = o.Source
	case o.Source != nil && !r.Source.Same(*o.Source):
		return nil, &ConflictError{Key: r.Key(), Left: r, Right: o, Reason: "sources differ"}
	}
	spec, err := r.Specifier.Intersect(o.Specifier)
	if err != nil {
		return nil, &ConflictError{Key: r.Key(), Left: r, Right: o, Reason: "version ranges do not intersect", Err: err}
	}
	out.Specifier = spec
	return out, nil
}

func mergeExtras(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := slices.Clone(a)
	for _, e := range b {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// ConflictError reports two requirements on one key that cannot both hold.
type ConflictError struct {
	Key         Key
	Left, Right *Requirement
	Reason      string
	Err         error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s conflicts with %s: %s", e.Key, e.Left, e.Right, e.Reason)
}

// Unwrap exposes a coded CONFLICT error.
func (e *ConflictError) Unwrap() error {
	return errors.Wrap(errors.ErrCodeConflict, e.Err, "%s", e.Reason)
}
