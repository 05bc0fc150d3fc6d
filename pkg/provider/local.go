package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"deps.dev/util/pypi"
	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// Builder produces core metadata (the text of a METADATA file) for a
// source tree that does not declare it statically.
type Builder func(ctx context.Context, dir string) (string, error)

// buildScript asks the "build" package for the wheel metadata of a tree.
const buildScript = `import sys
from build.util import project_wheel_metadata
sys.stdout.write(project_wheel_metadata(sys.argv[1]).as_string())
`

// PythonBuilder returns a Builder that runs the PEP 517 metadata hook of a
// tree through python's "build" package. The interpreter must have it
// installed.
func PythonBuilder(python string) Builder {
	return func(ctx context.Context, dir string) (string, error) {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, python, "-c", buildScript, dir)
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("build metadata: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), nil
	}
}

// LocalOptions configures a Local adapter.
type LocalOptions struct {
	Parser requirement.Parser
	// Builder handles trees without static metadata. Nil rejects them.
	Builder Builder
}

// Local serves path requirements: a project directory, an unpacked
// distribution, or a wheel or sdist archive.
type Local struct {
	opts LocalOptions

	mu   sync.Mutex
	memo map[string]*coreMetadata
}

// NewLocal returns a Local adapter.
func NewLocal(opts LocalOptions) *Local {
	return &Local{opts: opts, memo: make(map[string]*coreMetadata)}
}

func (l *Local) List(ctx context.Context, r *requirement.Requirement) ([]Listing, error) {
	if r.Source == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s has no path source", r.Name)
	}
	md, err := l.load(ctx, r.Source.Location, r.Source.Subdirectory)
	if err != nil {
		return nil, err
	}
	return listingFor(l.opts.Parser, r, md, nil)
}

func (l *Local) Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	src := c.Source()
	md, err := l.load(ctx, src.Location, src.Subdirectory)
	if err != nil {
		return nil, err
	}
	return buildMetadata(l.opts.Parser, md.Requires, md.RequiresPython, md.Extras, c.Hashes())
}

// listingFor checks that md describes the project r names and turns it
// into the single listing of a direct reference.
func listingFor(p requirement.Parser, r *requirement.Requirement, md *coreMetadata, hashes []string) ([]Listing, error) {
	if name := requirement.NormalizeName(md.Name); name != r.Name {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s provides %q, not %q", r.Source, name, r.Name)
	}
	v, err := p.Versions.Parse(md.Version)
	if err != nil {
		return nil, err
	}
	return []Listing{{Version: v, Source: r.Source, Hashes: hashes}}, nil
}

// load reads (once) the metadata at path, descending into subdir.
func (l *Local) load(ctx context.Context, path, subdir string) (*coreMetadata, error) {
	key := filepath.Join(path, subdir)
	l.mu.Lock()
	md, ok := l.memo[key]
	l.mu.Unlock()
	if ok {
		return md, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "read %s", path)
	}
	if fi.IsDir() {
		md, err = l.fromDir(ctx, key)
	} else {
		md, err = fromArchiveFile(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.memo[key] = md
	l.mu.Unlock()
	return md, nil
}

func (l *Local) fromDir(ctx context.Context, dir string) (*coreMetadata, error) {
	candidates := []string{filepath.Join(dir, "PKG-INFO")}
	for _, pattern := range []string{"*.dist-info/METADATA", "*.egg-info/PKG-INFO"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		slices.Sort(matches)
		candidates = append(candidates, matches...)
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return parseCoreMetadata(ctx, string(data))
	}

	md, err := fromPyproject(filepath.Join(dir, "pyproject.toml"))
	if err == nil {
		return md, nil
	}
	if l.opts.Builder == nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupported, err, "%s has no static metadata", dir)
	}
	text, berr := l.opts.Builder(ctx, dir)
	if berr != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataFetch, berr, "%s", dir)
	}
	return parseCoreMetadata(ctx, text)
}

// fromPyproject reads static [project] metadata. Projects that mark their
// version or dependencies as dynamic need a Builder.
func fromPyproject(path string) (*coreMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Project struct {
			Name                 string              `toml:"name"`
			Version              string              `toml:"version"`
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
			RequiresPython       string              `toml:"requires-python"`
			Dynamic              []string            `toml:"dynamic"`
		} `toml:"project"`
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "parse %s", path)
	}
	p := doc.Project
	if p.Name == "" {
		return nil, fmt.Errorf("%s: no [project] table", path)
	}
	for _, field := range []string{"version", "dependencies", "optional-dependencies"} {
		if slices.Contains(p.Dynamic, field) {
			return nil, fmt.Errorf("%s: %s is dynamic", path, field)
		}
	}
	if p.Version == "" {
		return nil, fmt.Errorf("%s: no version", path)
	}

	md := &coreMetadata{Name: p.Name, Version: p.Version, RequiresPython: p.RequiresPython}
	md.Requires = append(md.Requires, p.Dependencies...)
	groups := make([]string, 0, len(p.OptionalDependencies))
	for g := range p.OptionalDependencies {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	for _, g := range groups {
		md.Extras = append(md.Extras, g)
		for _, dep := range p.OptionalDependencies[g] {
			md.Requires = append(md.Requires, withExtraMarker(dep, g))
		}
	}
	return md, nil
}

// withExtraMarker gates a dependency line behind extra == name, keeping
// any marker it already has.
func withExtraMarker(line, extra string) string {
	cond := fmt.Sprintf("extra == %q", extra)
	if head, marker, ok := strings.Cut(line, ";"); ok {
		return fmt.Sprintf("%s; (%s) and %s", strings.TrimSpace(head), strings.TrimSpace(marker), cond)
	}
	return line + "; " + cond
}

func fromArchiveFile(ctx context.Context, path string) (*coreMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return fromArchive(ctx, filepath.Base(path), f, fi.Size())
}

// fromArchive reads the metadata of a wheel or sdist.
func fromArchive(ctx context.Context, filename string, r io.ReaderAt, size int64) (*coreMetadata, error) {
	var (
		md  *pypi.Metadata
		err error
	)
	switch {
	case strings.HasSuffix(filename, ".whl"):
		md, err = pypi.WheelMetadata(ctx, r, size)
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"), strings.HasSuffix(filename, ".zip"):
		md, err = pypi.SdistMetadata(ctx, filename, io.NewSectionReader(r, 0, size))
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported archive %s", filename)
	}
	if err != nil {
		var unsupported pypi.UnsupportedError
		if errors.As(err, &unsupported) {
			return nil, errors.Wrap(errors.ErrCodeUnsupported, err, "%s", filename)
		}
		return nil, errors.Wrap(errors.ErrCodeParse, err, "%s", filename)
	}

	out := &coreMetadata{Name: md.Name, Version: md.Version}
	for _, d := range md.Dependencies {
		out.Requires = append(out.Requires, dependencyLine(d))
	}
	return out, nil
}

var _ Adapter = (*Local)(nil)
