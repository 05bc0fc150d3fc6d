package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	coded "github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/integrations/pypi"
	"github.com/matzehuels/stacklock/pkg/lockfile"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/observability"
	"github.com/matzehuels/stacklock/pkg/provider"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/resolver"
	"github.com/matzehuels/stacklock/pkg/version"
)

// lockOpts holds the flags of the lock command.
type lockOpts struct {
	inputs inputOpts
	lock   lockOpt

	indexFile   string
	indexURL    string
	maxRounds   int
	prefetch    int
	prereleases bool
	refresh     bool
	noCache     bool
	buildPython string
	upgrade     bool
	dryRun      bool
}

func (c *CLI) lockCommand() *cobra.Command {
	var opts lockOpts

	cmd := &cobra.Command{
		Use:   "lock [requirements.txt | pyproject.toml]...",
		Short: "Resolve requirements and write a lockfile",
		Long: `Resolve the root requirements against the package index and write a lockfile.

Roots come from the given files (requirements.txt or pyproject.toml) and
--requirement flags. With no input, pyproject.toml or requirements.txt in
the current directory is used. Versions from an existing lockfile are
preferred so re-locking changes as little as possible.`,
		Example: `  stacklock lock requirements.txt
  stacklock lock pyproject.toml -e dev --python-version 3.12
  stacklock lock -r 'requests[socks]>=2' --dry-run
  stacklock lock --index-file universe.toml -r app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLock(cmd, args, opts)
		},
	}

	opts.inputs.register(cmd)
	opts.lock.register(cmd)
	cmd.Flags().StringVar(&opts.indexFile, "index-file", "", "resolve offline against a TOML package universe")
	cmd.Flags().StringVar(&opts.indexURL, "index-url", "", "PyPI JSON API root (default from config)")
	cmd.Flags().IntVar(&opts.maxRounds, "max-rounds", 0, "round limit before giving up (default from config)")
	cmd.Flags().IntVar(&opts.prefetch, "prefetch", 0, "concurrent metadata fetches (default from config)")
	cmd.Flags().BoolVar(&opts.prereleases, "pre", false, "allow pre-release versions")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached index responses")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the metadata cache")
	cmd.Flags().StringVar(&opts.buildPython, "build-python", "", "python interpreter used to build metadata for source trees")
	cmd.Flags().BoolVar(&opts.upgrade, "upgrade", false, "ignore versions from the existing lockfile")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the lockfile instead of writing it")

	return cmd
}

func (c *CLI) runLock(cmd *cobra.Command, args []string, opts lockOpts) error {
	ctx := cmd.Context()
	runID := uuid.New().String()
	logger := loggerFromContext(ctx).With("run", runID)
	ctx = withLogger(ctx, logger)
	out := printer{w: cmd.OutOrStdout()}

	counters := &observability.Counters{}
	observability.SetResolverHooks(counters)
	observability.SetCacheHooks(counters)
	observability.SetHTTPHooks(counters)
	defer observability.Reset()

	versions := version.NewCache(0)
	roots, err := opts.inputs.roots(ctx, versions, args)
	if err != nil {
		return err
	}
	env, err := opts.inputs.environment(c.cfg)
	if err != nil {
		return err
	}
	logger.Debug("target environment", "env", env)

	router, closeFn, err := c.newProvider(ctx, opts, env, versions)
	if err != nil {
		return err
	}
	defer closeFn()

	var p provider.Provider = router
	if !opts.upgrade {
		if prev, err := lockfile.ReadFile(opts.lock.path); err == nil {
			logger.Debug("preferring locked versions", "lockfile", opts.lock.path, "packages", len(prev.Packages))
			p = provider.PreferLocked(router, prev.Locked())
		} else if !coded.Is(err, coded.ErrCodeNotFound) {
			logger.Warn("ignoring unreadable lockfile", "path", opts.lock.path, "err", err)
		}
	}

	maxRounds := opts.maxRounds
	if maxRounds == 0 {
		maxRounds = c.cfg.MaxRounds
	}

	prog := newProgress(logger)
	res, err := resolver.Resolve(ctx, p, roots, resolver.Options{
		Environment: env,
		MaxRounds:   maxRounds,
		Reporter:    resolver.LogReporter{Logger: logger},
		Logger:      logger,
	})
	logStats(logger, counters.Snapshot())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	prog.done(fmt.Sprintf("Resolved %d packages", len(res.Pinned)), "rounds", res.Rounds)

	lf := lockfile.Build(res, roots, env)
	if opts.dryRun {
		return lf.Encode(cmd.OutOrStdout())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := lockfile.WriteFile(opts.lock.path, lf); err != nil {
		return err
	}

	out.success("Locked %s packages", StyleHighlight.Render(fmt.Sprint(len(lf.Packages))))
	out.file(opts.lock.path)
	return nil
}

// newProvider builds the metadata provider for a lock run: an offline
// universe when --index-file is set, the configured index otherwise. The
// returned func releases caches and VCS checkouts.
func (c *CLI) newProvider(ctx context.Context, opts lockOpts, env marker.Environment, versions *version.Cache) (*provider.Router, func(), error) {
	logger := loggerFromContext(ctx)
	prefetch := opts.prefetch
	if prefetch == 0 {
		prefetch = c.cfg.Prefetch
	}
	popts := provider.Options{
		Environment: env,
		Versions:    versions,
		Prefetch:    prefetch,
		Prereleases: opts.prereleases,
		Logger:      logger,
	}

	if opts.indexFile != "" {
		u, err := provider.LoadUniverse(opts.indexFile, requirement.Parser{Versions: versions})
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("loaded package universe", "file", opts.indexFile, "projects", u.Projects())
		r := provider.NewUniverseProvider(u, popts)
		return r, func() { r.Close() }, nil
	}

	cfg := c.cfg
	if opts.noCache {
		cfg.Cache = cacheNone
	}
	backend, err := cfg.openCache()
	if err != nil {
		return nil, nil, err
	}
	indexURL := opts.indexURL
	if indexURL == "" {
		indexURL = cfg.IndexURL
	}
	client := pypi.NewClient(backend, indexURL, cfg.CacheTTL.Duration).WithKeyer(cfg.keyer())

	idx := provider.IndexOptions{Refresh: opts.refresh, Logger: logger}
	if opts.buildPython != "" {
		idx.Builder = provider.PythonBuilder(opts.buildPython)
	}
	r := provider.NewIndexProvider(client, popts, idx)
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("cleanup failed", "err", err)
		}
		backend.Close()
	}, nil
}

// logStats logs hook counters at debug level.
func logStats(logger *log.Logger, s observability.Snapshot) {
	logger.Debug("resolution stats",
		"pins", s.Pins,
		"backtracks", s.Backtracks,
		"fetches", s.Fetches,
		"fetch_errors", s.FetchErrors,
		"cache_hits", s.CacheHits,
		"cache_misses", s.CacheMisses,
		"requests", s.Requests,
		"http_errors", s.HTTPErrors,
	)
}

// FormatError renders err for the terminal: conflict reports for failed
// resolutions, the user message otherwise.
func FormatError(err error) string {
	if errors.Is(err, context.Canceled) {
		return StyleDim.Render("interrupted")
	}
	return renderFailure(err)
}
