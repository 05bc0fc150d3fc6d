package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/graph"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// defaultWhyPaths bounds the paths printed without --all.
const defaultWhyPaths = 5

func (c *CLI) whyCommand() *cobra.Command {
	var (
		lock lockOpt
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "why <package>",
		Short: "Show why a package is in the lockfile",
		Long:  `Why prints the dependency paths from the project roots to a locked package, shortest first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lf, err := lock.read()
			if err != nil {
				return err
			}
			name := requirement.NormalizeName(args[0])
			pkg, ok := lf.Package(name)
			if !ok {
				return errors.New(errors.ErrCodeNotFound, "%s is not in %s", args[0], lock.path)
			}
			g, err := lf.Graph()
			if err != nil {
				return err
			}

			limit := defaultWhyPaths
			if all {
				limit = 0
			}
			paths := g.Paths(graph.ProjectRootNodeID, name, limit)

			out := printer{w: cmd.OutOrStdout()}
			out.info("%s %s", StyleHighlight.Render(pkg.Name), pkg.Version)
			if pkg.Markers != "" {
				out.detail("only when %s", pkg.Markers)
			}
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+formatPath(g, path))
			}
			if len(paths) == limit && limit > 0 {
				out.detail("showing the first %d paths, use --all for more", limit)
			}
			return nil
		},
	}

	lock.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "print every path")
	return cmd
}

// formatPath renders a path as "app 1.0 → requests 2.31.0", leaving out
// the virtual project root.
func formatPath(g *graph.Graph, path []string) string {
	parts := make([]string, 0, len(path))
	for _, id := range path {
		n, ok := g.Node(id)
		if !ok || n.IsRoot() {
			continue
		}
		v, _ := n.Meta["version"].(string)
		parts = append(parts, n.ID+" "+StyleDim.Render(v))
	}
	return strings.Join(parts, StyleDim.Render(" "+iconArrow+" "))
}
