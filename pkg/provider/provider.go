// Package provider supplies candidates and their metadata to the resolver.
//
// [Provider] is the contract the resolution engine consumes. [Router] is
// the standard implementation: it interns candidates in a [candidate.Store]
// and delegates listing and metadata retrieval to one [Adapter] per source
// kind:
//
//   - [Index]: a PyPI-compatible JSON API
//   - [Universe]: an in-memory (or TOML-loaded) package index
//   - [Local]: a directory or archive on disk
//   - [URL]: a remote wheel or sdist
//   - [VCS]: a git checkout
//
// [PreferLocked] wraps a Provider so versions from an existing lockfile are
// tried first.
package provider

import (
	"context"
	"iter"
	"slices"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Provider is the metadata interface of the resolution engine.
type Provider interface {
	// Identify returns the resolution slot of a requirement or candidate.
	Identify(item requirement.Identifier) requirement.Key

	// FindCandidates yields the candidates that may satisfy r, best first:
	// highest version first, or the single pinned distribution of an
	// explicit source. Every call starts from the beginning. A listing
	// failure is yielded as an error and ends the sequence.
	FindCandidates(ctx context.Context, r *requirement.Requirement) iter.Seq2[*candidate.Candidate, error]

	// GetDependencies returns the requirements c introduces in env.
	// Failures are *candidate.FetchError.
	GetDependencies(ctx context.Context, c *candidate.Candidate, env marker.Environment) ([]*requirement.Requirement, error)
}

// Prefetcher is implemented by providers that can load metadata ahead of
// the engine asking for it.
type Prefetcher interface {
	Prefetch(ctx context.Context, cs []*candidate.Candidate)
}

// Listing is one distribution an adapter offers for a project.
type Listing struct {
	Version version.Version
	// Source is the explicit origin for non-index adapters.
	Source *requirement.Source
	// Hashes are "algo:hex" digests known from the listing.
	Hashes []string
	// RequiresPython is the range advertised before metadata is fetched.
	RequiresPython version.Specifier
	// Yanked releases are only offered to exact "==" pins.
	Yanked bool
}

// Adapter lists and describes the distributions of one source kind.
type Adapter interface {
	// List returns the distributions of the project r names. Order does
	// not matter; the Router sorts.
	List(ctx context.Context, r *requirement.Requirement) ([]Listing, error)
	// Fetch returns the metadata of a base candidate.
	Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error)
}

// sortListings orders listings best first: highest version, then
// non-yanked. The sort is stable so adapters with equal versions keep
// their own order.
func sortListings(ls []Listing) {
	slices.SortStableFunc(ls, func(a, b Listing) int {
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		switch {
		case a.Yanked && !b.Yanked:
			return 1
		case !a.Yanked && b.Yanked:
			return -1
		}
		return 0
	})
}
