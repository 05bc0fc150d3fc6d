package cli

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/graph"
	"github.com/matzehuels/stacklock/pkg/render/nodelink"
)

// Graph output formats.
const (
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatJSON = "json"
)

func (c *CLI) graphCommand() *cobra.Command {
	var (
		lock      lockOpt
		format    string
		output    string
		detailed  bool
		highlight []string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the lockfile dependency graph",
		Example: `  stacklock graph > deps.dot
  stacklock graph -f svg -o deps.svg --highlight urllib3
  stacklock graph -f json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lf, err := lock.read()
			if err != nil {
				return err
			}
			g, err := lf.Graph()
			if err != nil {
				return err
			}
			data, err := renderGraph(cmd, g, format, nodelink.Options{Detailed: detailed, Highlight: highlight})
			if err != nil {
				return err
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printer{w: cmd.ErrOrStderr()}.file(output)
			return nil
		},
	}

	lock.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatDOT, "output format: dot, svg or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include all package metadata in labels")
	cmd.Flags().StringSliceVar(&highlight, "highlight", nil, "packages to highlight")
	return cmd
}

func renderGraph(cmd *cobra.Command, g *graph.Graph, format string, opts nodelink.Options) ([]byte, error) {
	switch format {
	case formatDOT:
		return []byte(nodelink.ToDOT(g, opts)), nil
	case formatSVG:
		return nodelink.RenderSVG(cmd.Context(), nodelink.ToDOT(g, opts))
	case formatJSON:
		var buf bytes.Buffer
		if err := graph.WriteJSON(g, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want %s, %s or %s)", format, formatDOT, formatSVG, formatJSON)
}
