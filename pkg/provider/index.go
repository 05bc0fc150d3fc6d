package provider

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/candidate"
	coded "github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/integrations"
	"github.com/matzehuels/stacklock/pkg/integrations/pypi"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// IndexOptions configures an Index adapter.
type IndexOptions struct {
	Parser  requirement.Parser
	Refresh bool // bypass the HTTP cache
	Logger  *log.Logger
	// Builder is handed to the Local adapter behind path, URL and VCS
	// sources. Nil rejects trees without static metadata.
	Builder Builder
}

// Index serves index requirements from a PyPI-compatible JSON API.
type Index struct {
	client *pypi.Client
	opts   IndexOptions
	log    *log.Logger
}

// NewIndex returns an Index adapter over client.
func NewIndex(client *pypi.Client, opts IndexOptions) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Index{client: client, opts: opts, log: logger}
}

func (x *Index) List(ctx context.Context, r *requirement.Requirement) ([]Listing, error) {
	project, err := x.client.FetchProject(ctx, r.Name, x.opts.Refresh)
	if err != nil {
		return nil, indexError(err, "list %s", r.Name)
	}

	out := make([]Listing, 0, len(project.Releases))
	for _, rel := range project.Releases {
		v, err := x.opts.Parser.Versions.Parse(rel.Version)
		if err != nil {
			// Legacy versions predate PEP 440 and cannot be ordered.
			x.log.Debug("skipping unparseable version", "project", r.Name, "version", rel.Version)
			continue
		}
		l := Listing{Version: v, Hashes: rel.Hashes(), Yanked: rel.Yanked()}
		for _, f := range rel.Files {
			if f.RequiresPython == "" || f.Yanked {
				continue
			}
			if spec, err := x.opts.Parser.Versions.ParseSpecifier(f.RequiresPython); err == nil {
				l.RequiresPython = spec
			}
			break
		}
		out = append(out, l)
	}
	return out, nil
}

func (x *Index) Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	md, err := x.client.FetchMetadata(ctx, c.Name(), c.Version().String(), x.opts.Refresh)
	if err != nil {
		return nil, indexError(err, "metadata for %s", c.ID())
	}
	return buildMetadata(x.opts.Parser, md.RequiresDist, md.RequiresPython, md.ProvidesExtra, c.Hashes())
}

// indexError maps HTTP client errors onto coded errors.
func indexError(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return coded.Wrap(coded.ErrCodeNotFound, err, format, args...)
	case errors.Is(err, integrations.ErrNetwork):
		return coded.Wrap(coded.ErrCodeNetwork, err, format, args...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return coded.Wrap(coded.ErrCodeMetadataFetch, err, format, args...)
}

// NewIndexProvider returns a Router that resolves index requirements
// through client and direct references through the Local, URL and VCS
// adapters.
func NewIndexProvider(client *pypi.Client, opts Options, idx IndexOptions) *Router {
	if idx.Logger == nil {
		idx.Logger = opts.Logger
	}
	if idx.Parser.Versions == nil {
		idx.Parser.Versions = opts.Versions
	}
	local := NewLocal(LocalOptions{Parser: idx.Parser, Builder: idx.Builder})
	return NewRouter(opts, map[requirement.SourceKind]Adapter{
		requirement.SourceIndex: NewIndex(client, idx),
		requirement.SourcePath:  local,
		requirement.SourceURL:   NewURL(client.Client, local),
		requirement.SourceVCS:   NewVCS(VCSOptions{Local: local, Logger: opts.Logger}),
	})
}

var _ Adapter = (*Index)(nil)
