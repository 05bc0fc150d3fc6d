package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stacklock/pkg/graph"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds every metadata field to node labels and the root
	// requirement text to edges leaving the project node. When false,
	// nodes show name and version only.
	Detailed bool

	// Highlight lists node IDs drawn with an accent fill, e.g. the
	// packages on the paths reported by "why".
	Highlight []string
}

const (
	highlightFill = "#ffe08a"
	rootLabel     = "project"
)

// ToDOT converts a lock graph to Graphviz DOT format. The project root is
// drawn as an ellipse; packages installed only under some markers get a
// dashed outline. Nodes appear in ID order so the output is stable.
func ToDOT(g *graph.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=24, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=16];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		attrs := fmtAttrs(*n, fmtLabel(*n, opts.Detailed), slices.Contains(opts.Highlight, n.ID))
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		req, _ := e.Meta["requirement"].(string)
		if opts.Detailed && req != "" {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, req)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n graph.Node, detailed bool) string {
	if n.IsRoot() {
		return rootLabel
	}
	if !detailed {
		if v, ok := n.Meta["version"].(string); ok {
			return n.ID + "\n" + v
		}
		return n.ID
	}

	var parts []string
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}
	return strings.Join(append([]string{n.ID}, parts...), "\n")
}

func fmtAttrs(n graph.Node, label string, highlight bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	_, conditional := n.Meta["markers"]
	switch {
	case n.IsRoot():
		attrs = append(attrs, "shape=ellipse", "fillcolor=lightgrey")
	case conditional:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	}
	if highlight {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", highlightFill))
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the root svg tag so the image scales from a
// zero origin with width and height equal to the view box.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
