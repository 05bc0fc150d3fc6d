package candidate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// State is the lifecycle tag of a candidate's metadata.
type State int

const (
	Unresolved State = iota
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

// Metadata is what a candidate's distribution declares about itself.
type Metadata struct {
	// Requires holds every Requires-Dist entry, markers included.
	Requires []*requirement.Requirement
	// RequiresPython is the Requires-Python range; the zero value allows all.
	RequiresPython version.Specifier
	// ProvidesExtra lists the declared extras, normalized.
	ProvidesExtra []string
	// Hashes are "algo:hex" digests of the distribution files, if known.
	Hashes []string
}

// Candidate is one concrete version of a package. Candidates are created by
// a Store and compared by pointer.
type Candidate struct {
	name    string
	extras  []string
	version version.Version
	source  *requirement.Source
	hashes  []string

	id    string
	base  *Candidate // nil for a base candidate
	store *Store
	entry *entry // shared with the base candidate
}

// Name returns the normalized package name.
func (c *Candidate) Name() string { return c.name }

// Key returns the resolution slot c fills.
func (c *Candidate) Key() requirement.Key {
	return requirement.Key{Name: c.name, Extras: strings.Join(c.extras, ",")}
}

// Extras returns the requested extras; nil for a base candidate.
func (c *Candidate) Extras() []string { return c.extras }

func (c *Candidate) Version() version.Version { return c.version }

// Source returns the explicit source, or nil for index candidates.
func (c *Candidate) Source() *requirement.Source { return c.source }

// Base returns the candidate without extras. A base candidate returns itself.
func (c *Candidate) Base() *Candidate {
	if c.base == nil {
		return c
	}
	return c.base
}

// ID returns the identity string: name[extras]==version, plus "@source"
// for candidates with an explicit source.
func (c *Candidate) ID() string { return c.id }

// Hashes returns the digests known for the distribution: the ones listed
// by the index, or those from metadata once resolved.
func (c *Candidate) Hashes() []string {
	b := c.Base()
	if len(b.hashes) > 0 {
		return b.hashes
	}
	if md, _, st := b.entry.load(); st == Resolved {
		return md.Hashes
	}
	return nil
}

func (c *Candidate) String() string {
	return c.Key().String() + " " + c.version.String()
}

// State reports whether metadata has been fetched.
func (c *Candidate) State() State {
	_, _, st := c.entry.load()
	return st
}

// Metadata fetches (once) and returns the candidate's metadata.
func (c *Candidate) Metadata(ctx context.Context) (*Metadata, error) {
	return c.store.metadata(ctx, c.Base())
}

// MatchesRequirement reports whether c satisfies r's name, source and
// version, ignoring r's marker.
func (c *Candidate) MatchesRequirement(r *requirement.Requirement) bool {
	return r.MatchesCandidate(c)
}

// Dependencies returns the requirements c introduces in env.
//
// For a base candidate these are the Requires-Dist entries whose marker
// holds without any extra. For an extras candidate they are a pin on the
// base candidate (same version and source) followed by the entries whose
// marker only holds once the requested extras are active; those entries
// carry the extras in ForExtras so they keep evaluating true downstream.
//
// A candidate whose Requires-Python excludes env fails with a *FetchError.
func (c *Candidate) Dependencies(ctx context.Context, env marker.Environment) ([]*requirement.Requirement, error) {
	md, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if !md.RequiresPython.IsAny() {
		py, err := c.store.versions.Parse(env.PythonFullVersion)
		if err == nil && !md.RequiresPython.Contains(py, true) {
			return nil, &FetchError{ID: c.ID(), Err: errors.New(errors.ErrCodeUnsupported,
				"requires python %s, environment has %s", md.RequiresPython, env.PythonFullVersion)}
		}
	}

	if c.base == nil {
		var out []*requirement.Requirement
		for _, r := range md.Requires {
			if r.Marker.Evaluate(env, nil) {
				out = append(out, r)
			}
		}
		return out, nil
	}

	out := []*requirement.Requirement{c.basePin()}
	for _, r := range md.Requires {
		if r.Marker.Evaluate(env, nil) || !r.Marker.Evaluate(env, c.extras) {
			continue
		}
		dep := *r
		dep.ForExtras = c.extras
		out = append(out, &dep)
	}
	return out, nil
}

// basePin is the requirement tying an extras candidate to its base.
func (c *Candidate) basePin() *requirement.Requirement {
	r := &requirement.Requirement{Name: c.name, Source: c.source}
	if c.source == nil {
		r.Specifier = version.MustParseSpecifier("==" + c.version.String())
	}
	return r
}

// ExtraRequirements groups the extra-gated Requires-Dist entries by the
// extra that enables them. Declared extras with no entries map to nil.
func (c *Candidate) ExtraRequirements(ctx context.Context) (map[string][]*requirement.Requirement, error) {
	md, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*requirement.Requirement, len(md.ProvidesExtra))
	for _, e := range md.ProvidesExtra {
		out[e] = nil
	}
	for _, r := range md.Requires {
		for _, e := range r.Marker.Extras() {
			out[e] = append(out[e], r)
		}
	}
	return out, nil
}

// identity builds the interning key of a candidate.
func identity(name string, extras []string, v version.Version, src *requirement.Source) string {
	var b strings.Builder
	b.WriteString(name)
	if len(extras) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(extras, ","))
	}
	b.WriteString("==")
	b.WriteString(v.Canon())
	if src != nil && src.Kind != requirement.SourceIndex {
		b.WriteByte('@')
		s := *src
		s.Hash = ""
		b.WriteString(s.String())
	}
	return b.String()
}

func normalizeExtras(extras []string) []string {
	if len(extras) == 0 {
		return nil
	}
	out := make([]string, 0, len(extras))
	for _, e := range extras {
		e = requirement.NormalizeExtra(e)
		if e != "" && !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}
