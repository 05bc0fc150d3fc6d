package version

import (
	"fmt"
	"slices"
	"strings"

	"deps.dev/util/semver"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// operators ordered so longer tokens are tried first.
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

type clause struct {
	op       string
	raw      string // version text after the operator
	v        Version
	wildcard bool // ==X.Y.* or !=X.Y.*
}

func (c clause) String() string { return c.op + c.raw }

// Specifier is an intersection of version clauses such as ">=1.0,<2,!=1.3".
// The zero Specifier matches every version.
type Specifier struct {
	clauses []clause
}

// Any returns a Specifier that matches every version.
func Any() Specifier { return Specifier{} }

// ParseSpecifier parses a comma-separated PEP 440 specifier set. The empty
// string parses to [Any].
func ParseSpecifier(s string) (Specifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Specifier{}, nil
	}
	var spec Specifier
	for _, part := range strings.Split(s, ",") {
		c, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return Specifier{}, errors.Wrap(errors.ErrCodeParse, err, "invalid specifier %q", s)
		}
		spec = spec.with(c)
	}
	return spec, nil
}

// MustParseSpecifier is like ParseSpecifier but panics on error.
func MustParseSpecifier(s string) Specifier {
	spec, err := ParseSpecifier(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func parseClause(s string) (clause, error) {
	if s == "" {
		return clause{}, fmt.Errorf("empty clause")
	}
	var c clause
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			c.op = op
			break
		}
	}
	if c.op == "" {
		return clause{}, fmt.Errorf("missing operator in %q", s)
	}
	c.raw = strings.TrimSpace(s[len(c.op):])
	if c.raw == "" {
		return clause{}, fmt.Errorf("missing version in %q", s)
	}
	if c.op == "===" {
		return c, nil
	}
	text := c.raw
	if strings.HasSuffix(text, ".*") {
		if c.op != "==" && c.op != "!=" {
			return clause{}, fmt.Errorf("wildcard not allowed with %s", c.op)
		}
		c.wildcard = true
		text = strings.TrimSuffix(text, ".*")
	}
	v, err := Parse(text)
	if err != nil {
		return clause{}, err
	}
	if c.op == "~=" && len(v.release) < 2 {
		return clause{}, fmt.Errorf("~= requires at least two release segments: %q", s)
	}
	c.v = v
	return c, nil
}

// with returns spec plus c, skipping exact duplicates.
func (s Specifier) with(c clause) Specifier {
	for _, have := range s.clauses {
		if have.op == c.op && have.raw == c.raw {
			return s
		}
	}
	out := Specifier{clauses: make([]clause, 0, len(s.clauses)+1)}
	out.clauses = append(out.clauses, s.clauses...)
	out.clauses = append(out.clauses, c)
	return out
}

// String renders the specifier in canonical clause order.
func (s Specifier) String() string {
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.String()
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

// IsAny reports whether s places no constraint on versions.
func (s Specifier) IsAny() bool { return len(s.clauses) == 0 }

// AllowsPrereleases reports whether any clause names a pre-release,
// which opts the whole specifier into matching pre-releases.
func (s Specifier) AllowsPrereleases() bool {
	for _, c := range s.clauses {
		if c.op != "!=" && c.v.IsPrerelease() {
			return true
		}
	}
	return false
}

// Pinned returns the version of a single "==" clause, if s is an exact pin.
func (s Specifier) Pinned() (Version, bool) {
	if len(s.clauses) != 1 {
		return Version{}, false
	}
	c := s.clauses[0]
	if c.op != "==" || c.wildcard {
		return Version{}, false
	}
	return c.v, true
}

// Contains reports whether v satisfies every clause. Pre-releases are
// accepted only if prereleases is true or the specifier asks for them.
func (s Specifier) Contains(v Version, prereleases bool) bool {
	if v.IsZero() {
		return false
	}
	if v.IsPrerelease() && !prereleases && !s.AllowsPrereleases() {
		return false
	}
	for _, c := range s.clauses {
		if !c.match(v) {
			return false
		}
	}
	return true
}

// Filter returns the indexes of versions that satisfy s, preserving order.
// Pre-releases are excluded unless requested, or unless no stable version
// satisfies s at all.
func (s Specifier) Filter(versions []Version) []int {
	var matched, pre []int
	for i, v := range versions {
		switch {
		case s.Contains(v, false):
			matched = append(matched, i)
		case v.IsPrerelease() && s.Contains(v, true):
			pre = append(pre, i)
		}
	}
	if len(matched) == 0 {
		return pre
	}
	return matched
}

// Intersect returns a specifier matching only versions matched by both s
// and o. It fails with a *ConflictError when the result provably matches
// nothing.
func (s Specifier) Intersect(o Specifier) (Specifier, error) {
	out := s
	for _, c := range o.clauses {
		out = out.with(c)
	}
	if out.empty() {
		return Specifier{}, &ConflictError{Left: s, Right: o}
	}
	return out, nil
}

// empty reports whether s can match no version. Clauses the range algebra
// cannot express (===) are ignored, so empty may miss some conflicts but
// never reports a satisfiable set as empty.
func (s Specifier) empty() bool {
	var parts []string
	for _, c := range s.clauses {
		if c.op == "===" {
			continue
		}
		parts = append(parts, c.String())
	}
	if len(parts) == 0 {
		return false
	}
	if s.pinExcluded() {
		return true
	}
	con, err := semver.PyPI.ParseConstraint(strings.Join(parts, ","))
	if err != nil {
		return false
	}
	return con.Set().Empty()
}

// pinExcluded reports whether an == clause is ruled out by another clause.
// The range algebra has no notion of != so these cases are checked here.
func (s Specifier) pinExcluded() bool {
	for _, pin := range s.clauses {
		if pin.op != "==" {
			continue
		}
		for _, c := range s.clauses {
			switch {
			case c.op == "===":
			case !pin.wildcard:
				if !c.match(pin.v) {
					return true
				}
			case c.op == "!=" && c.wildcard && len(c.v.release) <= len(pin.v.release) &&
				pin.v.hasPrefix(c.v.epoch, c.v.release):
				return true
			}
		}
	}
	return false
}

func (c clause) match(v Version) bool {
	switch c.op {
	case "===":
		return strings.EqualFold(v.String(), c.raw)
	case "==":
		if c.wildcard {
			return v.hasPrefix(c.v.epoch, c.v.release)
		}
		return c.cmp(v) == 0
	case "!=":
		if c.wildcard {
			return !v.hasPrefix(c.v.epoch, c.v.release)
		}
		return c.cmp(v) != 0
	case "<=":
		return c.cmp(v) <= 0
	case ">=":
		return c.cmp(v) >= 0
	case "<":
		if c.cmp(v) >= 0 {
			return false
		}
		// <V never admits pre-releases of V itself unless V is one.
		return !(v.IsPrerelease() && !c.v.IsPrerelease() && v.sameRelease(c.v))
	case ">":
		return c.cmp(v) > 0
	case "~=":
		prefix := c.v.release[:len(c.v.release)-1]
		return c.cmp(v) >= 0 && v.hasPrefix(c.v.epoch, prefix)
	}
	return false
}

// cmp compares v against the clause version, ignoring v's local label
// when the clause has none.
func (c clause) cmp(v Version) int {
	if !c.v.HasLocal() {
		v = v.public()
	}
	return v.Compare(c.v)
}

// ConflictError reports that two specifiers have no version in common.
type ConflictError struct {
	Left, Right Specifier
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version ranges %q and %q do not intersect", e.Left.String(), e.Right.String())
}

// Unwrap exposes the coded error so errors.Is(err, ErrCodeConflict) holds.
func (e *ConflictError) Unwrap() error {
	return errors.New(errors.ErrCodeConflict, "%s", e.Error())
}
