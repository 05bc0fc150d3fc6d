package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/version"
)

func (c *CLI) checkCommand() *cobra.Command {
	var (
		inputs inputOpts
		lock   lockOpt
	)

	cmd := &cobra.Command{
		Use:   "check [requirements.txt | pyproject.toml]...",
		Short: "Verify that the lockfile matches its inputs",
		Long: `Check compares the lockfile's input hash with the current root requirements
and target environment. It exits non-zero when the lockfile is outdated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lf, err := lock.read()
			if err != nil {
				return err
			}
			roots, err := inputs.roots(ctx, version.NewCache(0), args)
			if err != nil {
				return err
			}
			env, err := inputs.environment(c.cfg)
			if err != nil {
				return err
			}
			if err := lf.Check(roots, env); err != nil {
				return err
			}
			out := printer{w: cmd.OutOrStdout()}
			out.success("%s is up to date", lock.path)
			out.detail("%d packages · %d roots", len(lf.Packages), len(lf.Roots))
			return nil
		},
	}

	inputs.register(cmd)
	lock.register(cmd)
	return cmd
}
