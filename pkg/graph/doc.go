// Package graph holds package dependency graphs and their JSON form.
//
// # Overview
//
// A [Graph] is a directed graph of package names. It is built from a
// lockfile (see lockfile.Lockfile.Graph) and consumed by the node-link
// renderer and the "why" command. Unlike a layered DAG, cycles are allowed
// because Python packages may depend on each other; [Graph.Cycles] lists
// them.
//
// # Basic Usage
//
//	g := graph.New(nil)
//	g.AddNode(graph.Node{ID: "app"})
//	g.AddNode(graph.Node{ID: "lib", Meta: graph.Metadata{"version": "1.0.0"}})
//	g.AddEdge(graph.Edge{From: "app", To: "lib"})
//
// Query the structure with [Graph.Children], [Graph.Parents],
// [Graph.Sources], [Graph.Sinks] and [Graph.Paths].
//
// # Serialization
//
// [WriteJSON] and [ReadJSON] use a node-link format with nodes sorted by
// ID, so output is deterministic:
//
//	{"nodes": [{"id": "app"}, {"id": "lib", "meta": {"version": "1.0.0"}}],
//	 "edges": [{"from": "app", "to": "lib"}]}
package graph
