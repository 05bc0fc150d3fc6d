package candidate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/observability"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// DefaultPrefetch is the number of concurrent fetches Prefetch runs.
const DefaultPrefetch = 8

// FetchFunc retrieves the metadata of a base candidate. It is called at
// most once per identity per Store.
type FetchFunc func(ctx context.Context, c *Candidate) (*Metadata, error)

// FetchError reports that a candidate's metadata could not be retrieved
// or does not fit the environment. The candidate is unusable.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("metadata for %s: %v", e.ID, e.Err)
}

// Unwrap exposes a coded METADATA_FETCH error around the cause.
func (e *FetchError) Unwrap() error {
	return errors.Wrap(errors.ErrCodeMetadataFetch, e.Err, "%s", e.ID)
}

// entry is the write-once metadata slot of one base identity.
type entry struct {
	mu    sync.Mutex
	state State
	md    *Metadata
	err   error
}

func (e *entry) load() (*Metadata, error, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.md, e.err, e.state
}

// store sets the slot unless it is already settled.
func (e *entry) store(md *Metadata, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Unresolved {
		return
	}
	if err != nil {
		e.state, e.err = Failed, err
		return
	}
	e.state, e.md = Resolved, md
}

// Store interns candidates and memoizes their metadata. It is safe for
// concurrent use.
type Store struct {
	fetch    FetchFunc
	versions *version.Cache
	prefetch int

	mu    sync.Mutex
	byID  map[string]*Candidate
	group singleflight.Group
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Versions is the parse cache used for Requires-Python checks.
	Versions *version.Cache
	// Prefetch bounds concurrent fetches in Prefetch. Zero means DefaultPrefetch.
	Prefetch int
}

// NewStore returns an empty Store that loads metadata with fetch.
func NewStore(fetch FetchFunc, opts StoreOptions) *Store {
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}
	return &Store{
		fetch:    fetch,
		versions: opts.Versions,
		prefetch: opts.Prefetch,
		byID:     make(map[string]*Candidate),
	}
}

// Get returns the canonical candidate for the identity, creating it on
// first use. hashes are the digests known from the listing and are only
// recorded the first time.
func (s *Store) Get(name string, v version.Version, src *requirement.Source, hashes []string) *Candidate {
	name = requirement.NormalizeName(name)
	if src != nil && src.Kind == requirement.SourceIndex {
		src = nil
	}
	id := identity(name, nil, v, src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		return c
	}
	c := &Candidate{
		name:    name,
		version: v,
		source:  src,
		hashes:  hashes,
		id:      id,
		store:   s,
		entry:   &entry{},
	}
	s.byID[id] = c
	return c
}

// WithExtras returns the canonical candidate for base with extras. Empty
// extras return the base candidate.
func (s *Store) WithExtras(base *Candidate, extras []string) *Candidate {
	base = base.Base()
	extras = normalizeExtras(extras)
	if len(extras) == 0 {
		return base
	}
	id := identity(base.name, extras, base.version, base.source)

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		return c
	}
	c := &Candidate{
		name:    base.name,
		extras:  extras,
		version: base.version,
		source:  base.source,
		id:      id,
		base:    base,
		store:   s,
		entry:   base.entry,
	}
	s.byID[id] = c
	return c
}

// Lookup returns the interned candidate with the given identity.
func (s *Store) Lookup(id string) (*Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	return c, ok
}

// Len returns the number of interned candidates.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) metadata(ctx context.Context, c *Candidate) (*Metadata, error) {
	for {
		if md, err, st := c.entry.load(); st != Unresolved {
			return md, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Waiters share the leader's fetch. If the leader was cancelled the
		// slot stays unresolved and the next iteration fetches again.
		s.group.Do(c.id, func() (any, error) {
			if _, _, st := c.entry.load(); st != Unresolved {
				return nil, nil
			}
			start := time.Now()
			md, err := s.fetch(ctx, c)
			observability.Resolver().OnMetadataFetch(ctx, c.name, c.version.String(), time.Since(start), err)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil
				}
				var fe *FetchError
				if !errors.As(err, &fe) {
					err = &FetchError{ID: c.id, Err: err}
				}
			}
			if md == nil && err == nil {
				md = &Metadata{}
			}
			c.entry.store(md, err)
			return nil, nil
		})
	}
}

// Prefetch loads metadata for cs concurrently, bounded by the configured
// limit. Individual failures are recorded on the candidates and do not
// fail the call; only cancellation does.
func (s *Store) Prefetch(ctx context.Context, cs []*Candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.prefetch)
	for _, c := range cs {
		if c.State() != Unresolved {
			continue
		}
		g.Go(func() error {
			_, err := s.metadata(gctx, c.Base())
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	return g.Wait()
}
