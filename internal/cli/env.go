package cli

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/marker"
)

func (c *CLI) envCommand() *cobra.Command {
	var (
		inputs inputOpts
		asTOML bool
	)

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the marker environment used for resolution",
		Long: `Env prints the PEP 508 marker variables that lock and check evaluate
requirements against: the host defaults, overridden by the config file's
[environment] table and then by flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := inputs.environment(c.cfg)
			if err != nil {
				return err
			}
			if asTOML {
				return toml.NewEncoder(cmd.OutOrStdout()).Encode(struct {
					Environment marker.Environment `toml:"environment"`
				}{env})
			}
			out := printer{w: cmd.OutOrStdout()}
			for _, name := range marker.Variables {
				v, _ := env.Lookup(name)
				out.keyValue(name, v)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputs.python, "python-version", "", "target Python version, e.g. 3.12")
	cmd.Flags().StringVar(&inputs.platform, "platform", "", "target sys_platform: linux, darwin or win32")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print as a config [environment] table")
	return cmd
}
