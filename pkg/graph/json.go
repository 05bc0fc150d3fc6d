package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
)

// document is the node-link wire format.
type document struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
	Meta  Metadata   `json:"meta,omitempty"`
}

type jsonNode struct {
	ID   string   `json:"id"`
	Meta Metadata `json:"meta,omitempty"`
}

type jsonEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Meta Metadata `json:"meta,omitempty"`
}

// MarshalGraph converts a graph to indented JSON. Nodes are sorted by ID.
func MarshalGraph(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSON(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes g as JSON to w.
func WriteJSON(g *Graph, w io.Writer) error {
	doc := document{Meta: g.meta}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, jsonNode{ID: n.ID, Meta: nonEmpty(n.Meta)})
	}
	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, jsonEdge{From: e.From, To: e.To, Meta: nonEmpty(e.Meta)})
	}
	if len(doc.Meta) == 0 {
		doc.Meta = nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadJSON decodes a graph written by WriteJSON.
func ReadJSON(r io.Reader) (*Graph, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	g := New(doc.Meta)
	for _, n := range doc.Nodes {
		if err := g.AddNode(Node{ID: n.ID, Meta: maps.Clone(n.Meta)}); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n.ID, err)
		}
	}
	for _, e := range doc.Edges {
		if err := g.AddEdge(Edge{From: e.From, To: e.To, Meta: maps.Clone(e.Meta)}); err != nil {
			return nil, fmt.Errorf("add edge %s→%s: %w", e.From, e.To, err)
		}
	}
	return g, nil
}

func nonEmpty(m Metadata) Metadata {
	if len(m) == 0 {
		return nil
	}
	return m
}

// ReadJSONFile reads a graph from a JSON file.
func ReadJSONFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}
