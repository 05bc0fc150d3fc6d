// Package cli implements the stacklock command-line interface.
//
// Commands:
//   - lock: resolve root requirements and write a lockfile
//   - check: verify a lockfile against its inputs
//   - graph: export the lock graph as DOT, SVG or JSON
//   - why: show how a package is reached from the project roots
//   - env: print the target marker environment
//   - cache: manage the metadata cache
//
// All commands accept --verbose (-v) for debug logging and --config for
// an alternate config file. The logger travels in the command context.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/buildinfo"
)

// appName is used for config and cache directories.
const appName = "stacklock"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds state shared by all commands.
type CLI struct {
	Logger *log.Logger

	verbose    bool
	configFile string
	cfg        Config
}

// New creates a CLI that logs to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), cfg: defaultConfig()}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root command with every subcommand registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Stacklock resolves Python dependencies into a lockfile",
		Long:          `Stacklock resolves Python requirements against a package index, backtracking over conflicting versions, and records the result in a reproducible lockfile.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			path, explicit := c.configFile, c.configFile != ""
			if !explicit {
				path, _ = configPath()
			}
			cfg, err := loadConfig(path, explicit)
			if err != nil {
				return err
			}
			c.cfg = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/stacklock/config.toml)")

	root.AddCommand(c.lockCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.whyCommand())
	root.AddCommand(c.envCommand())
	root.AddCommand(c.cacheCommand())

	return root
}
