package resolver

import (
	"slices"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// Edge is one requirement in the resolution graph. From is the zero Key
// for root requirements.
type Edge struct {
	From        requirement.Key
	To          requirement.Key
	Requirement *requirement.Requirement
	Parent      *candidate.Candidate // nil for roots
}

// IsRoot reports whether the edge comes from a root requirement.
func (e Edge) IsRoot() bool { return e.From == (requirement.Key{}) }

// Graph records which candidate introduced which requirement. Edges are in
// a deterministic order: roots first as given, then by parent key.
type Graph struct {
	Edges []Edge
}

func (g *Graph) add(e Edge) { g.Edges = append(g.Edges, e) }

// Roots returns the root requirement edges.
func (g *Graph) Roots() []Edge {
	return g.filter(func(e Edge) bool { return e.IsRoot() })
}

// Children returns the edges leaving key.
func (g *Graph) Children(key requirement.Key) []Edge {
	return g.filter(func(e Edge) bool { return !e.IsRoot() && e.From == key })
}

// Parents returns the edges entering key.
func (g *Graph) Parents(key requirement.Key) []Edge {
	return g.filter(func(e Edge) bool { return e.To == key })
}

// Keys returns every slot that appears in the graph, sorted.
func (g *Graph) Keys() []requirement.Key {
	var out []requirement.Key
	for _, e := range g.Edges {
		for _, k := range []requirement.Key{e.From, e.To} {
			if k != (requirement.Key{}) && !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
	}
	slices.SortFunc(out, compareKeys)
	return out
}

func (g *Graph) filter(keep func(Edge) bool) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
