package resolver

import (
	"context"
	"slices"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// criterion is the accumulated constraint on one resolution slot.
// Criteria are never modified once built; every change makes a new one so
// earlier states on the stack stay intact.
type criterion struct {
	key               requirement.Key
	merged            *requirement.Requirement // intersection of every constituent
	information       []information            // constituents in introduction order
	candidates        []*candidate.Candidate   // matches of every constituent, best first
	incompatibilities []*candidate.Candidate   // ruled out by backtracking
}

// add returns the criterion with info merged in. A nil criterion means the
// ranges cannot intersect; cause then explains why. Candidates are
// filtered from the current list, except when info introduces an explicit
// source, which replaces the listing with the sourced distribution. When
// filtering leaves nothing the merged requirement is listed afresh.
func (c *criterion) add(ctx context.Context, e *engine, info information) (out *criterion, cause error, err error) {
	merged, mergeErr := c.merged.Merge(info.Requirement)
	if mergeErr != nil {
		return nil, mergeErr, nil
	}
	out = &criterion{
		key:               c.key,
		merged:            merged,
		information:       append(slices.Clone(c.information), info),
		incompatibilities: c.incompatibilities,
	}

	if c.merged.Source == nil && merged.Source != nil {
		found, listErr, err := e.find(ctx, merged, c.incompatibilities)
		if err != nil {
			return nil, nil, err
		}
		for _, cand := range found {
			if out.satisfiedBy(cand) {
				out.candidates = append(out.candidates, cand)
			}
		}
		return out, listErr, nil
	}

	for _, cand := range c.candidates {
		if info.Requirement.MatchesCandidate(cand) {
			out.candidates = append(out.candidates, cand)
		}
	}
	if len(out.candidates) > 0 {
		return out, nil, nil
	}

	// The earlier listing may have left out pre-releases that the
	// narrower merged range now admits as a fallback.
	found, listErr, err := e.find(ctx, merged, c.incompatibilities)
	if err != nil {
		return nil, nil, err
	}
	for _, cand := range found {
		if out.satisfiedBy(cand) {
			out.candidates = append(out.candidates, cand)
		}
	}
	return out, listErr, nil
}

// exclude returns the criterion with cand marked incompatible.
func (c *criterion) exclude(cand *candidate.Candidate) *criterion {
	out := *c
	out.incompatibilities = append(slices.Clone(c.incompatibilities), cand)
	out.candidates = slices.DeleteFunc(slices.Clone(c.candidates), func(x *candidate.Candidate) bool { return x == cand })
	return &out
}

// satisfiedBy reports whether cand matches every constituent.
func (c *criterion) satisfiedBy(cand *candidate.Candidate) bool {
	for _, info := range c.information {
		if !info.Requirement.MatchesCandidate(cand) {
			return false
		}
	}
	return true
}

// state is one entry of the resolution stack: the pins made so far and
// the criteria they produced.
type state struct {
	pins     map[requirement.Key]*candidate.Candidate
	criteria map[requirement.Key]*criterion
	pinned   requirement.Key // the pin that created this state; zero for the root
}

func newState() *state {
	return &state{
		pins:     make(map[requirement.Key]*candidate.Candidate),
		criteria: make(map[requirement.Key]*criterion),
	}
}

// clone copies the maps. Criteria and candidates are shared.
func (s *state) clone() *state {
	out := &state{
		pins:     make(map[requirement.Key]*candidate.Candidate, len(s.pins)+1),
		criteria: make(map[requirement.Key]*criterion, len(s.criteria)+4),
		pinned:   s.pinned,
	}
	for k, v := range s.pins {
		out.pins[k] = v
	}
	for k, v := range s.criteria {
		out.criteria[k] = v
	}
	return out
}

// basePins returns the base candidate pinned for every package name.
func (s *state) basePins() map[string]*candidate.Candidate {
	out := make(map[string]*candidate.Candidate)
	for key, c := range s.pins {
		if key.Extras == "" {
			out[key.Name] = c
		} else if _, ok := out[key.Name]; !ok {
			out[key.Name] = c.Base()
		}
	}
	return out
}
