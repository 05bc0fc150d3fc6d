package graph

import (
	"cmp"
	"errors"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when the To node
	// does not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// ProjectRootNodeID is the node that stands for the project's own root
// requirements.
const ProjectRootNodeID = "__project__"

// Metadata stores arbitrary key-value pairs attached to nodes, edges or
// the graph. Metadata maps are never nil once added to a graph.
type Metadata map[string]any

// Node is one package.
type Node struct {
	ID   string   // Package name, or ProjectRootNodeID
	Meta Metadata // version, markers, extras, source...
}

// IsRoot reports whether the node is the project root.
func (n Node) IsRoot() bool { return n.ID == ProjectRootNodeID }

// Edge is a dependency: From requires To.
type Edge struct {
	From string
	To   string
	Meta Metadata // e.g. the requirement text
}

// Graph is a directed dependency graph. The zero value is not usable; use
// New. Graph is not safe for concurrent use.
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]string
	incoming map[string][]string
	meta     Metadata
}

// New creates an empty graph with optional graph-level metadata.
func New(meta Metadata) *Graph {
	if meta == nil {
		meta = Metadata{}
	}
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map.
func (g *Graph) Meta() Metadata { return g.meta }

// AddNode adds a node. Its Meta is initialized if nil.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	g.nodes[n.ID] = &n
	return nil
}

// AddEdge adds a directed edge between two existing nodes. Adding the
// same edge twice is a no-op.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(g.outgoing[e.From], e.To) {
		return nil
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	g.edges = append(g.edges, e)
	g.outgoing[e.From] = append(g.outgoing[e.From], e.To)
	g.incoming[e.To] = append(g.incoming[e.To], e.From)
	return nil
}

// Nodes returns all nodes sorted by ID. The pointers refer to the graph's
// own nodes.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Children returns the IDs the node depends on. The slice is read-only.
func (g *Graph) Children(id string) []string { return g.outgoing[id] }

// Parents returns the IDs that depend on the node. The slice is read-only.
func (g *Graph) Parents(id string) []string { return g.incoming[id] }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Sources returns nodes with no incoming edges, sorted by ID.
func (g *Graph) Sources() []*Node {
	return g.filter(func(n *Node) bool { return len(g.incoming[n.ID]) == 0 })
}

// Sinks returns nodes with no outgoing edges, sorted by ID.
func (g *Graph) Sinks() []*Node {
	return g.filter(func(n *Node) bool { return len(g.outgoing[n.ID]) == 0 })
}

func (g *Graph) filter(keep func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Cycles returns one representative path for every cycle found by a
// depth-first search from each node in ID order. Each cycle starts and
// ends at the same node, e.g. [a b a]. Self-loops are included.
func (g *Graph) Cycles() [][]string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.nodes))
	var (
		stack  []string
		cycles [][]string
	)

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range g.outgoing[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				start := slices.Index(stack, child)
				cycle := append(slices.Clone(stack[start:]), child)
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, n := range g.Nodes() {
		if color[n.ID] == white {
			dfs(n.ID)
		}
	}
	return cycles
}

// Paths returns the simple paths from from to to, shortest first, at most
// limit of them (zero means no limit). Paths are found breadth-first so
// the result is deterministic for a given edge order.
func (g *Graph) Paths(from, to string, limit int) [][]string {
	if _, ok := g.nodes[from]; !ok {
		return nil
	}
	var out [][]string
	queue := [][]string{{from}}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		last := path[len(path)-1]
		if last == to {
			out = append(out, path)
			if limit > 0 && len(out) >= limit {
				return out
			}
			continue
		}
		for _, child := range g.outgoing[last] {
			if slices.Contains(path, child) {
				continue
			}
			queue = append(queue, append(slices.Clone(path), child))
		}
	}
	return out
}
