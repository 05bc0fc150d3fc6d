package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/lockfile"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// inputOpts selects root requirements and the target environment. It is
// shared by lock and check so both see identical inputs.
type inputOpts struct {
	requirements []string // inline requirement strings
	groups       []string // pyproject optional-dependency groups
	python       string
	platform     string
}

func (o *inputOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&o.requirements, "requirement", "r", nil, "add a root requirement, e.g. 'requests>=2' (repeatable)")
	cmd.Flags().StringSliceVarP(&o.groups, "extra", "e", nil, "include pyproject optional-dependency groups")
	cmd.Flags().StringVar(&o.python, "python-version", "", "target Python version, e.g. 3.12")
	cmd.Flags().StringVar(&o.platform, "platform", "", "target sys_platform: linux, darwin or win32")
}

// defaultInputs are tried in order when no input file is given.
var defaultInputs = []string{"pyproject.toml", "requirements.txt"}

// roots reads the root requirements from files and inline flags.
func (o *inputOpts) roots(ctx context.Context, versions *version.Cache, files []string) ([]*requirement.Requirement, error) {
	logger := loggerFromContext(ctx)
	if len(files) == 0 && len(o.requirements) == 0 {
		for _, name := range defaultInputs {
			if _, err := os.Stat(name); err == nil {
				files = []string{name}
				break
			}
		}
	}

	var out []*requirement.Requirement
	for _, path := range files {
		p := requirement.Parser{Versions: versions, BaseDir: filepath.Dir(path)}
		f, err := p.ReadFile(path, o.groups...)
		if err != nil {
			return nil, err
		}
		for _, line := range f.Skipped {
			logger.Debug("skipped input line", "file", path, "line", line)
		}
		logger.Debug("read roots", "file", path, "count", len(f.Requirements))
		out = append(out, f.Requirements...)
	}

	cwd, _ := os.Getwd()
	p := requirement.Parser{Versions: versions, BaseDir: cwd}
	for _, s := range o.requirements {
		r, err := p.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no requirements: pass a requirements file, a pyproject.toml or --requirement")
	}
	return out, nil
}

// platforms maps sys_platform to the other variables it implies.
var platforms = map[string]struct{ osName, system string }{
	"linux":  {"posix", "Linux"},
	"darwin": {"posix", "Darwin"},
	"win32":  {"nt", "Windows"},
}

// environment applies the flags on top of the configured environment.
func (o *inputOpts) environment(cfg Config) (marker.Environment, error) {
	env := cfg.environment()
	if o.python != "" {
		v, err := version.Parse(o.python)
		if err != nil {
			return env, errors.Wrap(errors.ErrCodeInvalidInput, err, "--python-version")
		}
		rel := v.Release()
		if len(rel) < 2 {
			return env, errors.New(errors.ErrCodeInvalidInput, "--python-version needs major.minor, got %q", o.python)
		}
		env.PythonVersion = fmt.Sprintf("%d.%d", rel[0], rel[1])
		env.PythonFullVersion = ""
		if len(rel) >= 3 {
			env.PythonFullVersion = o.python
		}
		env.ImplementationVersion = ""
	}
	if o.platform != "" {
		p, ok := platforms[o.platform]
		if !ok {
			return env, errors.New(errors.ErrCodeInvalidInput, "unknown platform %q (want linux, darwin or win32)", o.platform)
		}
		env.SysPlatform, env.OSName, env.PlatformSystem = o.platform, p.osName, p.system
	}
	return env.WithDefaults(), nil
}

// lockOpt names the lockfile read or written by a command.
type lockOpt struct {
	path string
}

func (o *lockOpt) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "lockfile", "l", lockfile.DefaultName, "lockfile path")
}

func (o *lockOpt) read() (*lockfile.Lockfile, error) {
	return lockfile.ReadFile(o.path)
}
