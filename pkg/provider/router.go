package provider

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Options configures a Router.
type Options struct {
	// Environment filters listings by their advertised Requires-Python.
	// The zero value disables the filter.
	Environment marker.Environment
	// Versions is the parse cache shared with adapters and the store.
	Versions *version.Cache
	// Prefetch bounds concurrent metadata fetches.
	Prefetch int
	// Prereleases admits pre-release versions for every requirement.
	Prereleases bool
	// Logger receives debug output. Nil discards it.
	Logger *log.Logger
}

// Router implements Provider by dispatching on the requirement's source kind.
type Router struct {
	opts     Options
	log      *log.Logger
	store    *candidate.Store
	adapters map[requirement.SourceKind]Adapter

	mu       sync.Mutex
	listings map[string][]Listing
}

// NewRouter returns a Router with the given adapters. More can be added
// with Register before resolution starts.
func NewRouter(opts Options, adapters map[requirement.SourceKind]Adapter) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Router{
		opts:     opts,
		log:      logger,
		adapters: make(map[requirement.SourceKind]Adapter, len(adapters)),
		listings: make(map[string][]Listing),
	}
	for k, a := range adapters {
		r.adapters[k] = a
	}
	r.store = candidate.NewStore(r.fetch, candidate.StoreOptions{
		Versions: opts.Versions,
		Prefetch: opts.Prefetch,
	})
	return r
}

// Register sets the adapter for one source kind.
func (r *Router) Register(kind requirement.SourceKind, a Adapter) {
	r.adapters[kind] = a
}

// Store returns the candidate arena of this router.
func (r *Router) Store() *candidate.Store { return r.store }

func (r *Router) Identify(item requirement.Identifier) requirement.Key {
	return item.Key()
}

func (r *Router) FindCandidates(ctx context.Context, req *requirement.Requirement) iter.Seq2[*candidate.Candidate, error] {
	return func(yield func(*candidate.Candidate, error) bool) {
		ls, err := r.list(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, l := range r.filter(req, ls) {
			c := r.store.Get(req.Name, l.Version, l.Source, l.Hashes)
			if !yield(r.store.WithExtras(c, req.Extras), nil) {
				return
			}
		}
	}
}

func (r *Router) GetDependencies(ctx context.Context, c *candidate.Candidate, env marker.Environment) ([]*requirement.Requirement, error) {
	deps, err := c.Dependencies(ctx, env)
	if err != nil {
		r.log.Debug("metadata unavailable", "candidate", c.ID(), "err", err)
		return nil, err
	}
	return deps, nil
}

// Prefetch loads metadata for cs in the background of the caller's round.
func (r *Router) Prefetch(ctx context.Context, cs []*candidate.Candidate) {
	if err := r.store.Prefetch(ctx, cs); err != nil {
		r.log.Debug("prefetch interrupted", "err", err)
	}
}

func kindOf(src *requirement.Source) requirement.SourceKind {
	if src == nil {
		return requirement.SourceIndex
	}
	return src.Kind
}

func (r *Router) adapter(kind requirement.SourceKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "no provider for %s sources", kind)
	}
	return a, nil
}

// list returns the sorted listings for req, memoized per project and source.
func (r *Router) list(ctx context.Context, req *requirement.Requirement) ([]Listing, error) {
	key := req.Name
	if req.Source != nil {
		key += " @ " + req.Source.String()
	}
	r.mu.Lock()
	ls, ok := r.listings[key]
	r.mu.Unlock()
	if ok {
		return ls, nil
	}

	a, err := r.adapter(kindOf(req.Source))
	if err != nil {
		return nil, err
	}
	ls, err = a.List(ctx, req)
	if err != nil {
		return nil, err
	}
	sortListings(ls)
	r.log.Debug("listed", "project", key, "versions", len(ls))

	r.mu.Lock()
	r.listings[key] = ls
	r.mu.Unlock()
	return ls, nil
}

// filter applies the version, yank, Requires-Python and pre-release
// policies to sorted listings.
func (r *Router) filter(req *requirement.Requirement, ls []Listing) []Listing {
	_, pinned := req.Specifier.Pinned()
	py, pyErr := r.opts.Versions.Parse(r.opts.Environment.PythonFullVersion)

	var kept []Listing
	for _, l := range ls {
		if l.Yanked && !pinned {
			continue
		}
		if pyErr == nil && !l.RequiresPython.IsAny() && !l.RequiresPython.Contains(py, true) {
			continue
		}
		kept = append(kept, l)
	}
	if req.Source != nil || r.opts.Prereleases {
		var out []Listing
		for _, l := range kept {
			if req.Specifier.Contains(l.Version, true) {
				out = append(out, l)
			}
		}
		return out
	}

	versions := make([]version.Version, len(kept))
	for i, l := range kept {
		versions[i] = l.Version
	}
	idx := req.Specifier.Filter(versions)
	out := make([]Listing, len(idx))
	for i, j := range idx {
		out[i] = kept[j]
	}
	return out
}

// Close releases adapter resources such as VCS checkouts.
func (r *Router) Close() error {
	var first error
	for _, a := range r.adapters {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (r *Router) fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	a, err := r.adapter(kindOf(c.Source()))
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, c)
}

var (
	_ Provider   = (*Router)(nil)
	_ Prefetcher = (*Router)(nil)
	_ io.Closer  = (*Router)(nil)
)
