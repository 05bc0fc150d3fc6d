package lockfile

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/cache"
	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/resolver"
)

// Version is the lockfile schema version written by this package.
const Version = 1

// Lockfile is the serialized result of one resolution.
type Lockfile struct {
	Version     int                `toml:"version"`
	InputHash   string             `toml:"input_hash"`
	Roots       []string           `toml:"roots"`
	Environment marker.Environment `toml:"environment"`
	Packages    []Package          `toml:"package"`
}

// Package is one pinned distribution.
type Package struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Source  string   `toml:"source,omitempty"` // direct reference; empty for index packages
	Hashes  []string `toml:"hashes,omitempty"`
	// Markers is the condition under which the package is installed. Empty
	// means always.
	Markers      string   `toml:"markers,omitempty"`
	Extras       []string `toml:"extras,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// Build records a successful resolution. Packages are sorted by name and
// every list inside a package is sorted, so equal resolutions produce
// byte-identical lockfiles.
func Build(res *resolver.Result, roots []*requirement.Requirement, env marker.Environment) *Lockfile {
	lf := &Lockfile{
		Version:     Version,
		InputHash:   InputHash(roots, env),
		Roots:       rootStrings(roots),
		Environment: env,
	}

	markers := resolveMarkers(res.Graph)
	deps := dependencyNames(res.Graph)

	for _, name := range slices.Sorted(maps.Keys(res.Pinned)) {
		lf.Packages = append(lf.Packages, newPackage(res.Pinned[name], res.Extras(name), markers[name], deps[name]))
	}
	return lf
}

func newPackage(c *candidate.Candidate, extras []string, m *marker.Marker, deps []string) Package {
	p := Package{
		Name:         c.Name(),
		Version:      c.Version().String(),
		Hashes:       slices.Sorted(slices.Values(c.Hashes())),
		Extras:       extras,
		Dependencies: deps,
	}
	if src := c.Source(); src != nil {
		p.Source = src.String()
	}
	if m != nil {
		p.Markers = m.String()
	}
	return p
}

// Package returns the entry for name.
func (lf *Lockfile) Package(name string) (Package, bool) {
	name = requirement.NormalizeName(name)
	i, ok := slices.BinarySearchFunc(lf.Packages, name, func(p Package, n string) int {
		return strings.Compare(p.Name, n)
	})
	if !ok {
		return Package{}, false
	}
	return lf.Packages[i], true
}

// InputHash fingerprints the inputs of a resolution: the root
// requirements in canonical form, order-insensitive, and the target
// environment.
func InputHash(roots []*requirement.Requirement, env marker.Environment) string {
	data, _ := json.Marshal(struct {
		Roots       []string           `json:"roots"`
		Environment marker.Environment `json:"environment"`
	}{rootStrings(roots), env})
	return cache.Hash(data)
}

func rootStrings(roots []*requirement.Requirement) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, r.String())
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// dependencyNames collects, per package, the names of the packages its
// slots depend on. The edge from an extras slot to its own base is not a
// dependency.
func dependencyNames(g *resolver.Graph) map[string][]string {
	out := make(map[string][]string)
	for _, e := range g.Edges {
		if e.IsRoot() || e.From.Name == e.To.Name {
			continue
		}
		if !slices.Contains(out[e.From.Name], e.To.Name) {
			out[e.From.Name] = append(out[e.From.Name], e.To.Name)
		}
	}
	for _, names := range out {
		slices.Sort(names)
	}
	return out
}

// reach is the set of conditions under which a package is needed.
type reach struct {
	always  bool
	markers map[string]*marker.Marker
}

func (r *reach) add(m *marker.Marker) bool {
	if r.always {
		return false
	}
	if m == nil {
		r.always = true
		r.markers = nil
		return true
	}
	key := m.String()
	if _, ok := r.markers[key]; ok {
		return false
	}
	if r.markers == nil {
		r.markers = make(map[string]*marker.Marker)
	}
	r.markers[key] = m
	return true
}

// resolveMarkers computes, per package, the OR over every path from a root
// of the AND of the markers along the path. A package reached by an
// unconditional path gets a nil marker. Markers selected through an extra
// drop their extra comparisons since the extra is known to be requested
// once its slot is pinned.
func resolveMarkers(g *resolver.Graph) map[string]*marker.Marker {
	reached := make(map[string]*reach)
	get := func(name string) *reach {
		r, ok := reached[name]
		if !ok {
			r = &reach{}
			reached[name] = r
		}
		return r
	}

	names := make(map[string]bool)
	for _, e := range g.Edges {
		names[e.To.Name] = true
	}

	// Cycles can keep extending conjunctions; a path never needs more
	// edges than there are packages.
	for pass := 0; pass <= len(names)+1; pass++ {
		changed := false
		for _, e := range g.Edges {
			m := e.Requirement.Marker
			if e.From.Extras != "" || len(e.Requirement.ForExtras) > 0 {
				m = m.WithoutExtras()
			}
			target := get(e.To.Name)
			if e.IsRoot() {
				changed = target.add(m) || changed
				continue
			}
			parent, ok := reached[e.From.Name]
			if !ok {
				continue
			}
			if parent.always {
				changed = target.add(m) || changed
				continue
			}
			for _, key := range sortedKeys(parent.markers) {
				changed = target.add(marker.And(parent.markers[key], m)) || changed
			}
		}
		if !changed {
			break
		}
	}

	out := make(map[string]*marker.Marker, len(reached))
	for name, r := range reached {
		if r.always || len(r.markers) == 0 {
			out[name] = nil
			continue
		}
		var m *marker.Marker
		for i, key := range sortedKeys(r.markers) {
			if i == 0 {
				m = r.markers[key]
				continue
			}
			m = marker.Or(m, r.markers[key])
		}
		out[name] = m
	}
	return out
}

func sortedKeys(m map[string]*marker.Marker) []string {
	return slices.Sorted(maps.Keys(m))
}
