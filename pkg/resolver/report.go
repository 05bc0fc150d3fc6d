package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// information pairs a requirement with the candidate that introduced it.
type information = RequirementInformation

// RequirementInformation records who asked for a requirement.
type RequirementInformation struct {
	Requirement *requirement.Requirement
	Parent      *candidate.Candidate // nil for a root requirement
}

func (ri RequirementInformation) String() string {
	if ri.Parent == nil {
		return "the root requires " + ri.Requirement.String()
	}
	return fmt.Sprintf("%s requires %s", ri.Parent, ri.Requirement)
}

// conflict is one reason a pin attempt or criterion failed.
type conflict struct {
	key         requirement.Key
	information []information
	err         error // merge or provider error, if any
}

// ConflictReport explains why one resolution slot could not be satisfied.
type ConflictReport struct {
	Key requirement.Key
	// Requirements lists every contributing requirement with the candidate
	// that introduced it, in introduction order.
	Requirements []RequirementInformation
	// Causes holds metadata, listing and merge errors seen for this slot.
	Causes []error
}

// Message renders the report as one sentence, e.g.
// "b 1.0 requires a>=2, but the root requires a<2,>=1".
func (r ConflictReport) Message() string {
	parts := make([]string, len(r.Requirements))
	for i, ri := range r.Requirements {
		parts[i] = ri.String()
	}
	if len(parts) == 0 {
		return r.Key.String() + " cannot be satisfied"
	}
	slices.Reverse(parts)
	msg := strings.Join(parts, ", but ")
	if len(parts) == 1 {
		msg += ", and no candidate matches"
	}
	return msg
}

// reports folds conflicts into one report per key, ordered by first
// appearance, with duplicate requirements removed.
func reports(conflicts []conflict) []ConflictReport {
	var (
		out   []ConflictReport
		index = make(map[requirement.Key]int)
	)
	for _, c := range conflicts {
		i, ok := index[c.key]
		if !ok {
			i = len(out)
			index[c.key] = i
			out = append(out, ConflictReport{Key: c.key})
		}
		r := &out[i]
		for _, info := range c.information {
			if !slices.ContainsFunc(r.Requirements, func(have RequirementInformation) bool {
				return have.Parent == info.Parent && have.Requirement.String() == info.Requirement.String()
			}) {
				r.Requirements = append(r.Requirements, info)
			}
		}
		if c.err != nil && !slices.ContainsFunc(r.Causes, func(have error) bool { return have.Error() == c.err.Error() }) {
			r.Causes = append(r.Causes, c.err)
		}
	}
	return out
}

// ImpossibleError reports that no consistent set of candidates exists.
type ImpossibleError struct {
	Reports []ConflictReport
}

func (e *ImpossibleError) Error() string {
	names := make([]string, len(e.Reports))
	for i, r := range e.Reports {
		names[i] = r.Key.String()
	}
	return "resolution impossible: conflicting requirements on " + strings.Join(names, ", ")
}

func (e *ImpossibleError) Unwrap() error {
	return errors.New(errors.ErrCodeResolutionImpossible, "no consistent set of versions")
}

// TooDeepError reports that the round limit was reached. Partial is the
// deepest pin state, for diagnostics.
type TooDeepError struct {
	Rounds  int
	Partial map[string]*candidate.Candidate
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("resolution too deep: gave up after %d rounds with %d packages pinned", e.Rounds, len(e.Partial))
}

func (e *TooDeepError) Unwrap() error {
	return errors.New(errors.ErrCodeResolutionTooDeep, "round limit reached")
}
