package provider

import (
	"context"
	"iter"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// PreferLocked wraps p so that, for every project in locked, the locked
// version is offered before the others. Candidates that no longer satisfy
// the requirement are not offered at all, so stale entries fall back to
// normal ordering.
func PreferLocked(p Provider, locked map[string]version.Version) Provider {
	if len(locked) == 0 {
		return p
	}
	norm := make(map[string]version.Version, len(locked))
	for name, v := range locked {
		norm[requirement.NormalizeName(name)] = v
	}
	return &lockedProvider{Provider: p, locked: norm}
}

type lockedProvider struct {
	Provider
	locked map[string]version.Version
}

func (l *lockedProvider) FindCandidates(ctx context.Context, r *requirement.Requirement) iter.Seq2[*candidate.Candidate, error] {
	want, ok := l.locked[r.Name]
	if !ok || r.Source != nil {
		return l.Provider.FindCandidates(ctx, r)
	}
	return func(yield func(*candidate.Candidate, error) bool) {
		var (
			preferred *candidate.Candidate
			rest      []*candidate.Candidate
		)
		for c, err := range l.Provider.FindCandidates(ctx, r) {
			if err != nil {
				yield(nil, err)
				return
			}
			if preferred == nil && c.Version().Equal(want) {
				preferred = c
				continue
			}
			rest = append(rest, c)
		}
		if preferred != nil && !yield(preferred, nil) {
			return
		}
		for _, c := range rest {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (l *lockedProvider) GetDependencies(ctx context.Context, c *candidate.Candidate, env marker.Environment) ([]*requirement.Requirement, error) {
	return l.Provider.GetDependencies(ctx, c, env)
}

// Prefetch forwards to the wrapped provider when it supports prefetching.
func (l *lockedProvider) Prefetch(ctx context.Context, cs []*candidate.Candidate) {
	if pf, ok := l.Provider.(Prefetcher); ok {
		pf.Prefetch(ctx, cs)
	}
}

var _ Prefetcher = (*lockedProvider)(nil)
