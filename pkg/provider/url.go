package provider

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/integrations"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// URL serves requirements that point at a remote wheel or sdist. The
// archive is downloaded once per run and its sha256 recorded.
type URL struct {
	client *integrations.Client
	parser requirement.Parser

	mu   sync.Mutex
	memo map[string]urlEntry
}

type urlEntry struct {
	md     *coreMetadata
	sum    string
	hashes []string
}

// NewURL returns a URL adapter that downloads with client and parses
// requirements like local.
func NewURL(client *integrations.Client, local *Local) *URL {
	return &URL{client: client, parser: local.opts.Parser, memo: make(map[string]urlEntry)}
}

func (u *URL) List(ctx context.Context, r *requirement.Requirement) ([]Listing, error) {
	if r.Source == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s has no URL source", r.Name)
	}
	e, err := u.load(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	return listingFor(u.parser, r, e.md, e.hashes)
}

func (u *URL) Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	e, err := u.load(ctx, c.Source())
	if err != nil {
		return nil, err
	}
	return buildMetadata(u.parser, e.md.Requires, e.md.RequiresPython, e.md.Extras, e.hashes)
}

func (u *URL) load(ctx context.Context, src *requirement.Source) (urlEntry, error) {
	u.mu.Lock()
	e, ok := u.memo[src.Location]
	u.mu.Unlock()
	if !ok {
		data, sum, err := u.client.Download(ctx, src.Location)
		if err != nil {
			return urlEntry{}, indexError(err, "download %s", src.Location)
		}
		md, err := fromArchive(ctx, archiveName(src.Location), bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return urlEntry{}, err
		}
		e = urlEntry{md: md, sum: sum, hashes: []string{"sha256:" + sum}}
		u.mu.Lock()
		u.memo[src.Location] = e
		u.mu.Unlock()
	}

	// The memo is keyed without the fragment, so every reference is checked.
	if algo, want, ok := strings.Cut(src.Hash, "="); ok && algo == "sha256" && !strings.EqualFold(want, e.sum) {
		return urlEntry{}, errors.New(errors.ErrCodeInvalidPackage, "%s: sha256 %s does not match expected %s", src.Location, e.sum, want)
	}
	return e, nil
}

// archiveName returns the file name at the end of a URL path.
func archiveName(raw string) string {
	if parsed, err := url.Parse(raw); err == nil {
		return path.Base(parsed.Path)
	}
	return path.Base(raw)
}

var _ Adapter = (*URL)(nil)
