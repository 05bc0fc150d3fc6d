package candidate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// fakeIndex serves metadata from a map keyed by "name==version".
type fakeIndex struct {
	mu    sync.Mutex
	calls map[string]int
	data  map[string]*Metadata
	fail  map[string]error
}

func (f *fakeIndex) fetch(ctx context.Context, c *Candidate) (*Metadata, error) {
	key := c.Name() + "==" + c.Version().String()
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[key]++
	f.mu.Unlock()
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return f.data[key], nil
}

func reqs(t *testing.T, lines ...string) []*requirement.Requirement {
	t.Helper()
	var out []*requirement.Requirement
	for _, l := range lines {
		r, err := requirement.Parse(l)
		if err != nil {
			t.Fatalf("Parse(%q): %v", l, err)
		}
		out = append(out, r)
	}
	return out
}

func strs(rs []*requirement.Requirement) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.String())
	}
	return out
}

func TestStore_Interning(t *testing.T) {
	s := NewStore((&fakeIndex{}).fetch, StoreOptions{})
	v := version.MustParse("1.0")

	a := s.Get("Foo_Bar", v, nil, nil)
	b := s.Get("foo-bar", version.MustParse("1.0"), nil, nil)
	if a != b {
		t.Error("same identity should intern to one pointer")
	}
	if a.Name() != "foo-bar" {
		t.Errorf("Name() = %s", a.Name())
	}

	src, _ := requirement.ParseSource("git+https://github.com/org/foo.git@main", "")
	c := s.Get("foo-bar", v, &src, nil)
	if c == a {
		t.Error("a different source is a different identity")
	}

	x := s.WithExtras(a, []string{"Socks", "cli"})
	y := s.WithExtras(b, []string{"cli", "socks"})
	if x != y {
		t.Error("extras candidates should intern regardless of extra order")
	}
	if x.Base() != a {
		t.Error("Base() should return the base candidate")
	}
	if got := x.Key().String(); got != "foo-bar[cli,socks]" {
		t.Errorf("Key() = %s", got)
	}
	if s.WithExtras(a, nil) != a {
		t.Error("no extras should return the base")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if got, ok := s.Lookup(x.ID()); !ok || got != x {
		t.Error("Lookup by ID failed")
	}
}

func TestCandidate_MetadataMemoized(t *testing.T) {
	idx := &fakeIndex{data: map[string]*Metadata{
		"a==1.0": {Requires: reqs(t, "b>=1")},
	}}
	s := NewStore(idx.fetch, StoreOptions{})
	a := s.Get("a", version.MustParse("1.0"), nil, nil)
	ax := s.WithExtras(a, []string{"x"})

	if a.State() != Unresolved {
		t.Fatalf("new candidate state = %v", a.State())
	}
	ctx := context.Background()
	for range 3 {
		if _, err := a.Metadata(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := ax.Metadata(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if idx.calls["a==1.0"] != 1 {
		t.Errorf("fetch calls = %d, want 1", idx.calls["a==1.0"])
	}
	if a.State() != Resolved || ax.State() != Resolved {
		t.Errorf("states = %v, %v", a.State(), ax.State())
	}
}

func TestCandidate_FailedFetchIsSticky(t *testing.T) {
	idx := &fakeIndex{fail: map[string]error{"a==1.0": fmt.Errorf("build backend crashed")}}
	s := NewStore(idx.fetch, StoreOptions{})
	a := s.Get("a", version.MustParse("1.0"), nil, nil)

	ctx := context.Background()
	_, err1 := a.Dependencies(ctx, marker.Default())
	_, err2 := a.Dependencies(ctx, marker.Default())
	if err1 == nil || err2 == nil {
		t.Fatal("expected errors")
	}
	var fe *FetchError
	if !errors.As(err1, &fe) {
		t.Fatalf("error type %T, want *FetchError", err1)
	}
	if !errors.Is(err1, errors.ErrCodeMetadataFetch) {
		t.Errorf("code = %v", errors.GetCode(err1))
	}
	if a.State() != Failed {
		t.Errorf("state = %v, want failed", a.State())
	}
	if idx.calls["a==1.0"] != 1 {
		t.Errorf("fetch calls = %d, want 1", idx.calls["a==1.0"])
	}
}

func TestCandidate_CancelledFetchRetries(t *testing.T) {
	idx := &fakeIndex{data: map[string]*Metadata{"a==1.0": {}}}
	s := NewStore(idx.fetch, StoreOptions{})
	a := s.Get("a", version.MustParse("1.0"), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Metadata(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if a.State() != Unresolved {
		t.Errorf("cancelled fetch should leave the candidate unresolved, got %v", a.State())
	}
	if _, err := a.Metadata(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestCandidate_Dependencies(t *testing.T) {
	idx := &fakeIndex{data: map[string]*Metadata{
		"requests==2.31.0": {
			Requires: reqs(t,
				"urllib3<3,>=1.21.1",
				"idna<4,>=2.5",
				`chardet<6,>=3.0.2; python_version < "3.0"`,
				`PySocks!=1.5.7,>=1.5.6; extra == "socks"`,
				`win-inet-pton; sys_platform == "win32" and extra == "socks"`,
			),
			ProvidesExtra: []string{"socks", "use-chardet-on-py3"},
		},
	}}
	s := NewStore(idx.fetch, StoreOptions{})
	env := marker.Environment{PythonVersion: "3.11", SysPlatform: "linux"}.WithDefaults()
	ctx := context.Background()

	base := s.Get("requests", version.MustParse("2.31.0"), nil, nil)
	deps, err := base.Dependencies(ctx, env)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"urllib3<3,>=1.21.1", "idna<4,>=2.5"}, strs(deps)); diff != "" {
		t.Errorf("base deps mismatch (-want +got):\n%s", diff)
	}

	socks := s.WithExtras(base, []string{"socks"})
	deps, err = socks.Dependencies(ctx, env)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"requests==2.31.0", `pysocks!=1.5.7,>=1.5.6; extra == "socks"`}
	if diff := cmp.Diff(want, strs(deps)); diff != "" {
		t.Errorf("extras deps mismatch (-want +got):\n%s", diff)
	}
	if !deps[1].Applies(env) {
		t.Error("extra-gated dependency should apply through ForExtras")
	}
	if !deps[0].MatchesCandidate(base) {
		t.Error("base pin should match the base candidate")
	}

	extras, err := base.ExtraRequirements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(extras["socks"]) != 2 || extras["use-chardet-on-py3"] != nil {
		t.Errorf("ExtraRequirements = %v", extras)
	}
}

func TestCandidate_RequiresPython(t *testing.T) {
	idx := &fakeIndex{data: map[string]*Metadata{
		"modern==2.0": {RequiresPython: version.MustParseSpecifier(">=3.12")},
	}}
	s := NewStore(idx.fetch, StoreOptions{Versions: version.NewCache(0)})
	c := s.Get("modern", version.MustParse("2.0"), nil, nil)

	env := marker.Environment{PythonVersion: "3.11"}.WithDefaults()
	_, err := c.Dependencies(context.Background(), env)
	if !errors.Is(err, errors.ErrCodeMetadataFetch) {
		t.Errorf("err = %v, want metadata fetch error", err)
	}

	env = marker.Environment{PythonVersion: "3.12"}.WithDefaults()
	if _, err := c.Dependencies(context.Background(), env); err != nil {
		t.Errorf("3.12 should be allowed: %v", err)
	}
}

func TestCandidate_Hashes(t *testing.T) {
	idx := &fakeIndex{data: map[string]*Metadata{"b==1.0": {Hashes: []string{"sha256:ff"}}}}
	s := NewStore(idx.fetch, StoreOptions{})

	a := s.Get("a", version.MustParse("1.0"), nil, []string{"sha256:aa"})
	if diff := cmp.Diff([]string{"sha256:aa"}, s.WithExtras(a, []string{"x"}).Hashes()); diff != "" {
		t.Errorf("listing hashes mismatch (-want +got):\n%s", diff)
	}

	b := s.Get("b", version.MustParse("1.0"), nil, nil)
	if b.Hashes() != nil {
		t.Error("unresolved candidate without listing hashes should have none")
	}
	if _, err := b.Metadata(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sha256:ff"}, b.Hashes()); diff != "" {
		t.Errorf("metadata hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PrefetchConcurrent(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, c *Candidate) (*Metadata, error) {
		calls.Add(1)
		if c.Name() == "broken" {
			return nil, fmt.Errorf("no metadata")
		}
		return &Metadata{}, nil
	}
	s := NewStore(fetch, StoreOptions{Prefetch: 2})

	var cs []*Candidate
	for i := range 10 {
		c := s.Get(fmt.Sprintf("pkg%d", i), version.MustParse("1.0"), nil, nil)
		// Duplicates and extras variants share one fetch.
		cs = append(cs, c, c, s.WithExtras(c, []string{"x"}))
	}
	broken := s.Get("broken", version.MustParse("1.0"), nil, nil)
	cs = append(cs, broken)

	if err := s.Prefetch(context.Background(), cs); err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if got := calls.Load(); got != 11 {
		t.Errorf("fetch calls = %d, want 11", got)
	}
	for _, c := range cs[:30] {
		if c.State() != Resolved {
			t.Errorf("%s state = %v", c, c.State())
		}
	}
	if broken.State() != Failed {
		t.Errorf("broken state = %v", broken.State())
	}
}

func TestStore_PrefetchCancelled(t *testing.T) {
	s := NewStore((&fakeIndex{}).fetch, StoreOptions{})
	c := s.Get("a", version.MustParse("1.0"), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Prefetch(ctx, []*Candidate{c}); err == nil {
		t.Error("Prefetch with a cancelled context should fail")
	}
}
