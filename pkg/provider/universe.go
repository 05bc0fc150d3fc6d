package provider

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Release is one version of a project in a Universe.
type Release struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version"`
	Requires       []string `toml:"requires,omitempty"`
	RequiresPython string   `toml:"requires_python,omitempty"`
	Extras         []string `toml:"extras,omitempty"`
	Hashes         []string `toml:"hashes,omitempty"`
	Yanked         bool     `toml:"yanked,omitempty"`
	// Broken makes metadata retrieval fail, like an sdist whose build crashes.
	Broken bool `toml:"broken,omitempty"`
}

// Universe is an in-memory package index. It backs offline resolution
// from a TOML file and serves as the fixture for engine tests.
//
//	[[package]]
//	name = "requests"
//	version = "2.31.0"
//	requires = ["idna<4,>=2.5", "urllib3<3,>=1.21.1"]
type Universe struct {
	parser requirement.Parser

	mu       sync.RWMutex
	projects map[string][]Release
}

// NewUniverse returns an empty Universe using p to parse requirements.
func NewUniverse(p requirement.Parser) *Universe {
	return &Universe{parser: p, projects: make(map[string][]Release)}
}

// LoadUniverse reads a Universe from a TOML file.
func LoadUniverse(path string, p requirement.Parser) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseUniverse(data, p)
}

// ParseUniverse decodes a Universe from TOML. Every version must parse.
func ParseUniverse(data []byte, p requirement.Parser) (*Universe, error) {
	var doc struct {
		Package []Release `toml:"package"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "parse package universe")
	}
	u := NewUniverse(p)
	for _, rel := range doc.Package {
		if err := u.AddRelease(rel); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Add registers name==v with the given Requires-Dist lines. It panics if
// v is not a valid version and returns u for chaining.
func (u *Universe) Add(name, v string, requires ...string) *Universe {
	if err := u.AddRelease(Release{Name: name, Version: v, Requires: requires}); err != nil {
		panic(err)
	}
	return u
}

// AddRelease registers a release, replacing any release with the same version.
func (u *Universe) AddRelease(rel Release) error {
	if _, err := u.parser.Versions.Parse(rel.Version); err != nil {
		return fmt.Errorf("%s: %w", rel.Name, err)
	}
	name := requirement.NormalizeName(rel.Name)
	if err := errors.ValidatePythonPackageName(name); err != nil {
		return err
	}
	rel.Name = name

	u.mu.Lock()
	defer u.mu.Unlock()
	rels := u.projects[name]
	for i, have := range rels {
		if have.Version == rel.Version {
			rels[i] = rel
			return nil
		}
	}
	u.projects[name] = append(rels, rel)
	return nil
}

// Projects returns the number of projects.
func (u *Universe) Projects() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.projects)
}

func (u *Universe) List(ctx context.Context, r *requirement.Requirement) ([]Listing, error) {
	u.mu.RLock()
	rels, ok := u.projects[r.Name]
	u.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "no project named %s", r.Name)
	}

	out := make([]Listing, 0, len(rels))
	for _, rel := range rels {
		v, err := u.parser.Versions.Parse(rel.Version)
		if err != nil {
			return nil, err
		}
		rp, err := u.parser.Versions.ParseSpecifier(rel.RequiresPython)
		if err != nil {
			return nil, err
		}
		out = append(out, Listing{Version: v, Hashes: rel.Hashes, RequiresPython: rp, Yanked: rel.Yanked})
	}
	return out, nil
}

func (u *Universe) Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	rel, ok := u.release(c.Name(), c.Version())
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "no release %s", c.ID())
	}
	if rel.Broken {
		return nil, errors.New(errors.ErrCodeMetadataFetch, "metadata for %s cannot be built", c.ID())
	}
	return buildMetadata(u.parser, rel.Requires, rel.RequiresPython, rel.Extras, rel.Hashes)
}

func (u *Universe) release(name string, v version.Version) (Release, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, rel := range u.projects[name] {
		rv, err := u.parser.Versions.Parse(rel.Version)
		if err == nil && rv.Equal(v) {
			return rel, true
		}
	}
	return Release{}, false
}

// NewUniverseProvider returns a Router that resolves index requirements
// from u.
func NewUniverseProvider(u *Universe, opts Options) *Router {
	if opts.Versions == nil {
		opts.Versions = u.parser.Versions
	}
	return NewRouter(opts, map[requirement.SourceKind]Adapter{requirement.SourceIndex: u})
}

var _ Adapter = (*Universe)(nil)
