// Package nodelink renders lockfile dependency graphs as node-link diagrams.
//
// Convert a graph (see lockfile.Lockfile.Graph) to DOT, then render it:
//
//	dot := nodelink.ToDOT(g, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// The DOT output uses a top-to-bottom layout with rounded boxes. The
// project root is an ellipse, conditional packages (non-empty markers)
// have dashed outlines, and [Options.Highlight] fills selected nodes.
// The DOT text can also be fed to external Graphviz tools.
//
// SVG rendering runs in-process through [github.com/goccy/go-graphviz].
package nodelink
