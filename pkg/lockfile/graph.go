package lockfile

import (
	"fmt"

	"github.com/matzehuels/stacklock/pkg/graph"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// Graph rebuilds the dependency graph from the lockfile. The project's
// roots hang off a virtual graph.ProjectRootNodeID node; edges to roots
// carry the root requirement text.
func (lf *Lockfile) Graph() (*graph.Graph, error) {
	g := graph.New(graph.Metadata{
		"lock_version": lf.Version,
		"input_hash":   lf.InputHash,
	})
	if err := g.AddNode(graph.Node{ID: graph.ProjectRootNodeID, Meta: graph.Metadata{"virtual": true}}); err != nil {
		return nil, err
	}

	for _, p := range lf.Packages {
		meta := graph.Metadata{"version": p.Version}
		if p.Source != "" {
			meta["source"] = p.Source
		}
		if p.Markers != "" {
			meta["markers"] = p.Markers
		}
		if len(p.Extras) > 0 {
			meta["extras"] = p.Extras
		}
		if err := g.AddNode(graph.Node{ID: p.Name, Meta: meta}); err != nil {
			return nil, fmt.Errorf("add %s: %w", p.Name, err)
		}
	}

	for _, root := range lf.Roots {
		r, err := requirement.Parse(root)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", root, err)
		}
		if _, ok := g.Node(r.Name); !ok {
			// Roots whose marker excluded them from this environment.
			continue
		}
		meta := graph.Metadata{"requirement": root}
		if err := g.AddEdge(graph.Edge{From: graph.ProjectRootNodeID, To: r.Name, Meta: meta}); err != nil {
			return nil, err
		}
	}

	for _, p := range lf.Packages {
		for _, dep := range p.Dependencies {
			if err := g.AddEdge(graph.Edge{From: p.Name, To: dep}); err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", p.Name, dep, err)
			}
		}
	}
	return g, nil
}
