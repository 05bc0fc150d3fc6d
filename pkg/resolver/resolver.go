package resolver

import (
	"cmp"
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/observability"
	"github.com/matzehuels/stacklock/pkg/provider"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// DefaultMaxRounds bounds the number of pin attempts. It is a safety valve
// against pathological inputs, not a correctness bound.
const DefaultMaxRounds = 20

// Options configures a resolution run.
type Options struct {
	Environment marker.Environment // Target environment (default: marker.Default())
	MaxRounds   int                // Maximum pin attempts (default: 20)
	Reporter    Reporter           // Progress sink (optional)
	Logger      *log.Logger        // Debug output (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Environment == (marker.Environment{}) {
		opts.Environment = marker.Default()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Reporter == nil {
		opts.Reporter = NoopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Result is a successful resolution.
type Result struct {
	// Mapping holds the pinned candidate of every resolution slot,
	// including extras slots such as requests[socks].
	Mapping map[requirement.Key]*candidate.Candidate
	// Pinned holds the base candidate of every package by name.
	Pinned map[string]*candidate.Candidate
	// Graph records which candidate introduced which requirement.
	Graph *Graph
	// Rounds is the number of pin attempts used.
	Rounds int
}

// Extras returns the extras requested for name, sorted.
func (r *Result) Extras(name string) []string {
	var out []string
	for k := range r.Mapping {
		if k.Name == name && k.Extras != "" {
			for _, e := range k.ExtraList() {
				if !slices.Contains(out, e) {
					out = append(out, e)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// Resolve computes a pinned set satisfying roots.
//
// Root requirements whose marker is false in the environment are ignored.
// Failures are reported as:
//   - [*ImpossibleError] when no consistent set exists
//   - [*TooDeepError] when Options.MaxRounds pin attempts were not enough
//   - a METADATA_FETCH error wrapping *candidate.FetchError when metadata
//     of a pinned candidate cannot be re-read while building the graph
//   - ctx.Err() when the context is cancelled between rounds
func Resolve(ctx context.Context, p provider.Provider, roots []*requirement.Requirement, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	e := &engine{
		provider: p,
		opts:     opts,
		log:      opts.Logger,
		order:    make(map[requirement.Key]int),
	}
	e.prefetcher, _ = p.(provider.Prefetcher)
	phases, _ := opts.Reporter.(PhaseReporter)

	hooks := observability.Resolver()
	hooks.OnResolveStart(ctx, len(roots))
	if phases != nil {
		phases.Starting()
	}
	start := time.Now()

	res, err := e.run(ctx, roots)

	pinned, rounds := 0, e.rounds
	if res != nil {
		pinned = len(res.Pinned)
	}
	hooks.OnResolveComplete(ctx, pinned, rounds, time.Since(start), err)
	if phases != nil {
		phases.Ending(res, err)
	}
	return res, err
}

// engine holds the state of one resolution run.
type engine struct {
	provider   provider.Provider
	prefetcher provider.Prefetcher // nil if p cannot prefetch
	opts       Options
	log        *log.Logger

	stack   []*state                // stack[0] holds only root criteria
	deepest *state                  // state with the most pins so far
	order   map[requirement.Key]int // first-seen order of every key
	rounds  int
}

func (e *engine) run(ctx context.Context, roots []*requirement.Requirement) (*Result, error) {
	root, applied, err := e.seed(ctx, roots)
	if err != nil {
		return nil, err
	}
	e.stack = []*state{root}
	e.deepest = root

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := e.top()
		key, ok := e.next(st)
		if !ok {
			return e.result(ctx, st, applied)
		}
		if e.rounds >= e.opts.MaxRounds {
			return nil, &TooDeepError{Rounds: e.rounds, Partial: e.deepest.basePins()}
		}

		e.rounds++
		if phases, ok := e.opts.Reporter.(PhaseReporter); ok {
			phases.StartingRound(e.rounds)
		}

		conflicts, err := e.pin(ctx, key)
		if err != nil {
			return nil, err
		}
		if conflicts == nil {
			continue
		}
		if more, ok := e.backtrack(ctx); !ok {
			return nil, &ImpossibleError{Reports: reports(append(conflicts, more...))}
		}
	}
}

// seed builds the root state from the requirements that apply.
func (e *engine) seed(ctx context.Context, roots []*requirement.Requirement) (*state, []*requirement.Requirement, error) {
	st := newState()
	var applied []*requirement.Requirement
	for _, r := range roots {
		if !r.Applies(e.opts.Environment) {
			e.log.Debug("skipping root requirement", "requirement", r, "marker", r.Marker)
			continue
		}
		crit, c, err := e.merge(ctx, st, information{Requirement: r})
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			return nil, nil, &ImpossibleError{Reports: reports([]conflict{*c})}
		}
		st.criteria[crit.key] = crit
		applied = append(applied, r)
	}
	return st, applied, nil
}

func (e *engine) top() *state { return e.stack[len(e.stack)-1] }

// next picks the unpinned criterion with the fewest candidates, breaking
// ties by first-seen order.
func (e *engine) next(st *state) (requirement.Key, bool) {
	var (
		best  *criterion
		found bool
	)
	for key, crit := range st.criteria {
		if _, pinned := st.pins[key]; pinned {
			continue
		}
		if !found || len(crit.candidates) < len(best.candidates) ||
			(len(crit.candidates) == len(best.candidates) && e.order[key] < e.order[best.key]) {
			best, found = crit, true
		}
	}
	if !found {
		return requirement.Key{}, false
	}
	return best.key, true
}

// pin tries the candidates of key in order and pushes the state of the
// first one that fits. It returns the conflicts that ruled out every
// candidate, or nil on success.
func (e *engine) pin(ctx context.Context, key requirement.Key) ([]conflict, error) {
	st := e.top()
	crit := st.criteria[key]
	if len(crit.candidates) == 0 {
		return []conflict{{key: key, information: crit.information}}, nil
	}

	var conflicts []conflict
	for _, c := range crit.candidates {
		next, conf, err := e.attempt(ctx, st, crit, c)
		if err != nil {
			return nil, err
		}
		if conf != nil {
			e.log.Debug("rejected", "candidate", c.ID(), "conflict", conf.key, "err", conf.err)
			conflicts = append(conflicts, *conf)
			continue
		}

		e.stack = append(e.stack, next)
		if len(next.pins) > len(e.deepest.pins) {
			e.deepest = next
		}
		e.opts.Reporter.OnPin(key, c)
		observability.Resolver().OnPin(ctx, key.String(), c.Version().String())
		e.log.Debug("pinned", "key", key, "version", c.Version(), "round", e.rounds)
		e.prefetch(ctx, next)
		return nil, nil
	}
	return conflicts, nil
}

// attempt builds the state that results from pinning c. The candidate's
// own slot is pinned before its dependencies are merged so a dependency
// on itself is checked against c.
func (e *engine) attempt(ctx context.Context, st *state, crit *criterion, c *candidate.Candidate) (*state, *conflict, error) {
	deps, err := e.provider.GetDependencies(ctx, c, e.opts.Environment)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, &conflict{key: crit.key, information: crit.information, err: err}, nil
	}

	next := st.clone()
	next.pinned = crit.key
	next.pins[crit.key] = c
	for _, d := range deps {
		merged, conf, err := e.merge(ctx, next, information{Requirement: d, Parent: c})
		if err != nil || conf != nil {
			return nil, conf, err
		}
		next.criteria[merged.key] = merged
	}
	return next, nil, nil
}

// merge adds info to the criterion of its key in st, returning the new
// criterion. st is not modified.
func (e *engine) merge(ctx context.Context, st *state, info information) (*criterion, *conflict, error) {
	key := e.provider.Identify(info.Requirement)
	if _, ok := e.order[key]; !ok {
		e.order[key] = len(e.order)
	}

	old, ok := st.criteria[key]
	if !ok {
		found, listErr, err := e.find(ctx, info.Requirement, nil)
		if err != nil {
			return nil, nil, err
		}
		crit := &criterion{key: key, merged: info.Requirement, information: []information{info}, candidates: found}
		if len(found) == 0 {
			return nil, &conflict{key: key, information: crit.information, err: listErr}, nil
		}
		return crit, nil, nil
	}

	crit, cause, err := old.add(ctx, e, info)
	if err != nil {
		return nil, nil, err
	}
	if crit == nil || len(crit.candidates) == 0 {
		infos := append(slices.Clone(old.information), info)
		return nil, &conflict{key: key, information: infos, err: cause}, nil
	}
	if pin, ok := st.pins[key]; ok && !slices.Contains(crit.candidates, pin) {
		return nil, &conflict{key: key, information: crit.information}, nil
	}
	return crit, nil, nil
}

// find collects the candidates the provider offers for r, minus the
// incompatible ones. A provider failure ends the list and is returned as
// listErr so it can be reported; only cancellation is fatal.
func (e *engine) find(ctx context.Context, r *requirement.Requirement, incompatible []*candidate.Candidate) (found []*candidate.Candidate, listErr error, err error) {
	for c, ferr := range e.provider.FindCandidates(ctx, r) {
		if ferr != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			e.log.Debug("no candidates", "requirement", r, "err", ferr)
			return found, ferr, nil
		}
		if !slices.Contains(incompatible, c) {
			found = append(found, c)
		}
	}
	return found, nil, nil
}

// backtrack undoes pins until the criterion of an undone pin has an
// untried candidate left. It reports false when the root state is reached
// without finding one, together with the criteria that ran dry.
func (e *engine) backtrack(ctx context.Context) ([]conflict, bool) {
	var exhausted []conflict
	for len(e.stack) > 1 {
		popped := e.top()
		e.stack = e.stack[:len(e.stack)-1]
		key := popped.pinned
		c := popped.pins[key]

		e.opts.Reporter.OnBacktrack(key)
		observability.Resolver().OnBacktrack(ctx, key.String())
		e.log.Debug("backtracking", "key", key, "version", c.Version())

		prev := e.top().clone()
		crit := prev.criteria[key].exclude(c)
		prev.criteria[key] = crit
		e.stack[len(e.stack)-1] = prev
		if len(crit.candidates) > 0 {
			return nil, true
		}
		exhausted = append(exhausted, conflict{key: key, information: crit.information})
	}
	return exhausted, false
}

// prefetch warms the metadata of the best candidate of every unpinned
// criterion, in first-seen order.
func (e *engine) prefetch(ctx context.Context, st *state) {
	if e.prefetcher == nil {
		return
	}
	var keys []requirement.Key
	for key, crit := range st.criteria {
		if _, pinned := st.pins[key]; !pinned && len(crit.candidates) > 0 {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b requirement.Key) int { return e.order[a] - e.order[b] })
	cs := make([]*candidate.Candidate, 0, len(keys))
	for _, key := range keys {
		if c := st.criteria[key].candidates[0]; c.State() == candidate.Unresolved {
			cs = append(cs, c)
		}
	}
	if len(cs) > 0 {
		e.prefetcher.Prefetch(ctx, cs)
	}
}

// result re-reads the dependencies of every pinned candidate to build the
// graph. A failure here is fatal: the candidate was already accepted.
func (e *engine) result(ctx context.Context, st *state, roots []*requirement.Requirement) (*Result, error) {
	g := &Graph{}
	for _, r := range roots {
		g.add(Edge{To: e.provider.Identify(r), Requirement: r})
	}

	keys := make([]requirement.Key, 0, len(st.pins))
	for key := range st.pins {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareKeys)
	for _, key := range keys {
		c := st.pins[key]
		deps, err := e.provider.GetDependencies(ctx, c, e.opts.Environment)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(errors.ErrCodeMetadataFetch, err, "re-read dependencies of pinned %s", c.ID())
		}
		for _, d := range deps {
			g.add(Edge{From: key, To: e.provider.Identify(d), Requirement: d, Parent: c})
		}
	}

	return &Result{
		Mapping: maps.Clone(st.pins),
		Pinned:  st.basePins(),
		Graph:   g,
		Rounds:  e.rounds,
	}, nil
}

func compareKeys(a, b requirement.Key) int {
	return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.Extras, b.Extras))
}
