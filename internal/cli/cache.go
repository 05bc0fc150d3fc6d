package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/cache"
)

func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package metadata cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	return cmd
}

func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached index response",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := printer{w: cmd.OutOrStdout()}
			backend, err := c.cfg.openCache()
			if err != nil {
				return err
			}
			defer backend.Close()

			cleared, err := cache.Clear(cmd.Context(), backend)
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			if !cleared {
				out.info("Cache is disabled")
				return nil
			}
			out.success("Cleared %s cache", c.cfg.Cache)
			out.detail("%s", cacheLocation(c.cfg))
			return nil
		},
	}
}

func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache lives",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cacheLocation(c.cfg))
			return nil
		},
	}
}

// cacheLocation describes the configured backend: a directory, a Redis
// URL, or "disabled".
func cacheLocation(cfg Config) string {
	switch cfg.Cache {
	case cacheNone:
		return "disabled"
	case cacheMemory:
		return "in-process"
	case cacheRedis:
		return cfg.RedisURL
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return "disabled"
	}
	return dir
}
