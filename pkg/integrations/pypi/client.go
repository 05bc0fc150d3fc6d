package pypi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/stacklock/pkg/cache"
	"github.com/matzehuels/stacklock/pkg/integrations"
)

// DefaultBaseURL is the PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// File is one distribution file of a release.
type File struct {
	Filename       string `json:"filename"`
	URL            string `json:"url"`
	PackageType    string `json:"packagetype"` // "bdist_wheel" or "sdist"
	SHA256         string `json:"sha256,omitempty"`
	RequiresPython string `json:"requires_python,omitempty"`
	Yanked         bool   `json:"yanked,omitempty"`
}

// Release is one version of a project with its files.
type Release struct {
	Version string `json:"version"`
	Files   []File `json:"files"`
}

// Yanked reports whether every file of the release is yanked. Releases
// with no files are treated as yanked since nothing can be installed.
func (r Release) Yanked() bool {
	for _, f := range r.Files {
		if !f.Yanked {
			return false
		}
	}
	return true
}

// Hashes returns the "sha256:<hex>" digests of the non-yanked files, sorted.
func (r Release) Hashes() []string {
	var out []string
	for _, f := range r.Files {
		if f.Yanked || f.SHA256 == "" {
			continue
		}
		out = append(out, "sha256:"+f.SHA256)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Project is the release listing of one project.
type Project struct {
	Name     string    `json:"name"`
	Releases []Release `json:"releases"` // in index order; callers sort by version
}

// Metadata is the core metadata of one release as the JSON API reports it.
type Metadata struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	RequiresDist   []string `json:"requires_dist"`
	RequiresPython string   `json:"requires_python,omitempty"`
	ProvidesExtra  []string `json:"provides_extra,omitempty"`
	Summary        string   `json:"summary,omitempty"`
}

// Client provides access to the PyPI JSON API.
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	keys    cache.Keyer
}

// NewClient creates a PyPI client over the given cache backend. Responses
// are cached for cacheTTL. baseURL may be empty for the public index.
func NewClient(backend cache.Cache, baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(backend, "pypi:", cacheTTL, map[string]string{"Accept": "application/json"}),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		keys:    cache.NewDefaultKeyer(),
	}
}

// WithKeyer replaces the cache key layout and returns c.
func (c *Client) WithKeyer(k cache.Keyer) *Client {
	if k != nil {
		c.keys = k
	}
	return c
}

// BaseURL returns the index root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchProject lists every release of pkg with its files.
//
// Returns [integrations.ErrNotFound] if the project doesn't exist and
// [integrations.ErrNetwork] for HTTP failures. With refresh set the cache
// is bypassed.
func (c *Client) FetchProject(ctx context.Context, pkg string, refresh bool) (*Project, error) {
	pkg = integrations.NormalizePkgName(pkg)

	var p Project
	err := c.CachedKind(ctx, "project", c.keys.ProjectKey(c.baseURL, pkg), refresh, &p, func() error {
		return c.fetchProject(ctx, pkg, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) fetchProject(ctx context.Context, pkg string, p *Project) error {
	var data projectResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: pypi package %s", err, pkg)
		}
		return err
	}

	*p = Project{Name: data.Info.Name}
	for v, files := range data.Releases {
		r := Release{Version: v}
		for _, f := range files {
			r.Files = append(r.Files, File{
				Filename:       f.Filename,
				URL:            f.URL,
				PackageType:    f.PackageType,
				SHA256:         f.Digests.SHA256,
				RequiresPython: f.RequiresPython,
				Yanked:         f.Yanked,
			})
		}
		p.Releases = append(p.Releases, r)
	}
	// Map iteration order is random; keep the cached form stable.
	slices.SortFunc(p.Releases, func(a, b Release) int { return strings.Compare(a.Version, b.Version) })
	return nil
}

// FetchMetadata returns the core metadata of one release.
func (c *Client) FetchMetadata(ctx context.Context, pkg, version string, refresh bool) (*Metadata, error) {
	pkg = integrations.NormalizePkgName(pkg)

	var md Metadata
	err := c.CachedKind(ctx, "metadata", c.keys.MetadataKey(pkg, version, nil), refresh, &md, func() error {
		var data releaseResponse
		url := fmt.Sprintf("%s/%s/%s/json", c.baseURL, pkg, version)
		if err := c.Get(ctx, url, &data); err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: pypi release %s %s", err, pkg, version)
			}
			return err
		}
		md = Metadata{
			Name:           data.Info.Name,
			Version:        data.Info.Version,
			RequiresDist:   data.Info.RequiresDist,
			RequiresPython: data.Info.RequiresPython,
			ProvidesExtra:  data.Info.ProvidesExtra,
			Summary:        data.Info.Summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &md, nil
}

type projectResponse struct {
	Info     apiInfo              `json:"info"`
	Releases map[string][]apiFile `json:"releases"`
}

type releaseResponse struct {
	Info apiInfo `json:"info"`
}

type apiInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Summary        string   `json:"summary"`
	RequiresDist   []string `json:"requires_dist"`
	RequiresPython string   `json:"requires_python"`
	ProvidesExtra  []string `json:"provides_extra"`
}

type apiFile struct {
	Filename       string `json:"filename"`
	URL            string `json:"url"`
	PackageType    string `json:"packagetype"`
	RequiresPython string `json:"requires_python"`
	Yanked         bool   `json:"yanked"`
	Digests        struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
}
