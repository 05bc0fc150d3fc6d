package resolver

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/provider"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

func newEngine(u *provider.Universe) *engine {
	return &engine{
		provider: provider.NewUniverseProvider(u, provider.Options{}),
		opts:     Options{Environment: py311}.WithDefaults(),
		log:      log.New(io.Discard),
		order:    make(map[requirement.Key]int),
	}
}

func TestCriterion_MonotonicShrink(t *testing.T) {
	u := universe()
	u.Add("a", "3.0").Add("a", "2.0").Add("a", "1.0").Add("a", "0.9")
	e := newEngine(u)
	ctx := context.Background()
	st := newState()

	last := -1
	for _, line := range []string{"a", "a<3", "a!=2.0", "a>=0.9", "a>0.9"} {
		crit, conf, err := e.merge(ctx, st, information{Requirement: requirement.MustParse(line)})
		if err != nil || conf != nil {
			t.Fatalf("merge %s: err=%v conflict=%v", line, err, conf)
		}
		st.criteria[crit.key] = crit
		n := len(crit.candidates)
		if last >= 0 && n > last {
			t.Errorf("after %s: %d candidates, was %d", line, n, last)
		}
		last = n
	}
	if last != 1 {
		t.Errorf("final size = %d, want 1", last)
	}
	if got := st.criteria[requirement.Key{Name: "a"}].candidates[0].Version().String(); got != "1.0" {
		t.Errorf("remaining candidate = %s, want 1.0", got)
	}
}

func TestCriterion_MergeConflict(t *testing.T) {
	u := universe()
	u.Add("a", "2.0").Add("a", "1.0")
	e := newEngine(u)
	ctx := context.Background()
	st := newState()

	crit, _, _ := e.merge(ctx, st, information{Requirement: requirement.MustParse("a>=2")})
	st.criteria[crit.key] = crit
	_, conf, err := e.merge(ctx, st, information{Requirement: requirement.MustParse("a<1")})
	if err != nil {
		t.Fatal(err)
	}
	if conf == nil || len(conf.information) != 2 || conf.err == nil {
		t.Fatalf("conflict = %+v, want both requirements and the merge error", conf)
	}
	if len(st.criteria[crit.key].information) != 1 {
		t.Error("a failed merge must leave the existing criterion untouched")
	}
}

func TestEngine_BacktrackRestoresState(t *testing.T) {
	u := universe()
	u.Add("a", "2.0").Add("a", "1.0")
	u.Add("b", "2.0", "a==1.0").Add("b", "1.0", "a==0.5")
	e := newEngine(u)
	ctx := context.Background()

	root, _, err := e.seed(ctx, roots("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	e.stack = []*state{root}
	e.deepest = root
	keyA, keyB := requirement.Key{Name: "a"}, requirement.Key{Name: "b"}
	before := len(root.criteria[keyA].candidates)

	if conflicts, err := e.pin(ctx, keyA); err != nil || conflicts != nil {
		t.Fatalf("pin a: %v %v", conflicts, err)
	}
	if conflicts, err := e.pin(ctx, keyB); err != nil || conflicts == nil {
		t.Fatalf("pin b should fail, got %v %v", conflicts, err)
	}
	if _, ok := e.backtrack(ctx); !ok {
		t.Fatal("backtrack found no alternative")
	}

	top := e.top()
	if len(e.stack) != 1 || len(top.pins) != 0 {
		t.Fatalf("stack = %d states, pins = %v", len(e.stack), top.pins)
	}
	if top.criteria[keyB] != root.criteria[keyB] {
		t.Error("criterion b changed across backtrack")
	}
	a := top.criteria[keyA]
	if len(a.candidates) != before-1 || a.candidates[0].Version().String() != "1.0" {
		t.Errorf("criterion a candidates = %v", a.candidates)
	}
	if len(a.incompatibilities) != 1 || a.incompatibilities[0].Version().String() != "2.0" {
		t.Errorf("incompatibilities = %v", a.incompatibilities)
	}
	if len(root.criteria[keyA].candidates) != before {
		t.Error("the saved root state was mutated")
	}
}
