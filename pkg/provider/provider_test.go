package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklock/pkg/cache"
	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/integrations/pypi"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

func versions(t *testing.T, p Provider, req string) []string {
	t.Helper()
	var out []string
	for c, err := range p.FindCandidates(context.Background(), requirement.MustParse(req)) {
		if err != nil {
			t.Fatalf("FindCandidates(%s): %v", req, err)
		}
		out = append(out, c.Version().String())
	}
	return out
}

func testUniverse() *Universe {
	u := NewUniverse(requirement.Parser{})
	u.Add("a", "1.0").Add("a", "2.0").Add("a", "3.0b1")
	u.Add("b", "1.0")
	u.AddRelease(Release{Name: "b", Version: "1.1", Yanked: true})
	u.Add("c", "1.0")
	u.AddRelease(Release{Name: "c", Version: "2.0", RequiresPython: ">=3.12"})
	return u
}

func TestRouter_FindCandidates(t *testing.T) {
	env := marker.Environment{PythonVersion: "3.11"}.WithDefaults()
	p := NewUniverseProvider(testUniverse(), Options{Environment: env})

	tests := []struct {
		req  string
		want []string
	}{
		{"a", []string{"2.0", "1.0"}},
		{"a<2", []string{"1.0"}},
		{"a>2.5", []string{"3.0b1"}},
		{"a>=3.0b1", []string{"3.0b1"}},
		{"b", []string{"1.0"}},
		{"b==1.1", []string{"1.1"}},
		{"c", []string{"1.0"}},
		{"a>5", nil},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, versions(t, p, tt.req)); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRouter_PrereleasesOption(t *testing.T) {
	p := NewUniverseProvider(testUniverse(), Options{Prereleases: true})
	if diff := cmp.Diff([]string{"3.0b1", "2.0", "1.0"}, versions(t, p, "a")); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_UnknownProject(t *testing.T) {
	p := NewUniverseProvider(testUniverse(), Options{})
	for _, err := range p.FindCandidates(context.Background(), requirement.MustParse("nope")) {
		if !errors.Is(err, errors.ErrCodeNotFound) {
			t.Errorf("err = %v, want NOT_FOUND", err)
		}
		return
	}
	t.Fatal("expected an error")
}

func TestRouter_Extras(t *testing.T) {
	u := NewUniverse(requirement.Parser{})
	u.Add("requests", "2.31.0", "idna>=2.5", `PySocks>=1.5.6; extra == "socks"`)
	u.Add("pysocks", "1.7.1")
	p := NewUniverseProvider(u, Options{})
	ctx := context.Background()

	var got *candidate.Candidate
	for c, err := range p.FindCandidates(ctx, requirement.MustParse("requests[socks]")) {
		if err != nil {
			t.Fatal(err)
		}
		got = c
		break
	}
	if got == nil {
		t.Fatal("no candidate")
	}
	if got.Key().String() != "requests[socks]" {
		t.Errorf("Key = %s", got.Key())
	}
	if p.Identify(got) != p.Identify(requirement.MustParse("requests[socks]")) {
		t.Error("candidate and requirement identify differently")
	}

	deps, err := p.GetDependencies(ctx, got, marker.Default())
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for _, d := range deps {
		lines = append(lines, d.Name+d.Specifier.String())
	}
	if diff := cmp.Diff([]string{"requests==2.31.0", "pysocks>=1.5.6"}, lines); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_BrokenMetadata(t *testing.T) {
	u := NewUniverse(requirement.Parser{})
	u.AddRelease(Release{Name: "broken", Version: "1.0", Broken: true})
	p := NewUniverseProvider(u, Options{})
	ctx := context.Background()

	for c, err := range p.FindCandidates(ctx, requirement.MustParse("broken")) {
		if err != nil {
			t.Fatal(err)
		}
		_, err := p.GetDependencies(ctx, c, marker.Default())
		var fe *candidate.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("err = %v, want *candidate.FetchError", err)
		}
		if c.State() != candidate.Failed {
			t.Errorf("State = %s, want failed", c.State())
		}
	}
}

func TestParseUniverse(t *testing.T) {
	data := []byte(`
[[package]]
name = "Flask"
version = "3.0.0"
requires = ["werkzeug>=3", "click>=8.1.3"]
requires_python = ">=3.8"

[[package]]
name = "werkzeug"
version = "3.0.1"
`)
	u, err := ParseUniverse(data, requirement.Parser{})
	if err != nil {
		t.Fatalf("ParseUniverse: %v", err)
	}
	if u.Projects() != 2 {
		t.Errorf("Projects = %d, want 2", u.Projects())
	}
	if _, err := ParseUniverse([]byte("[[package]]\nname = \"x\"\nversion = \"not a version\"\n"), requirement.Parser{}); err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestPreferLocked(t *testing.T) {
	base := NewUniverseProvider(testUniverse(), Options{})
	p := PreferLocked(base, map[string]version.Version{"A": version.MustParse("1.0")})

	if diff := cmp.Diff([]string{"1.0", "2.0"}, versions(t, p, "a")); diff != "" {
		t.Errorf("locked order mismatch (-want +got):\n%s", diff)
	}
	// A stale lock entry is simply not preferred.
	if diff := cmp.Diff([]string{"2.0"}, versions(t, p, "a>=2")); diff != "" {
		t.Errorf("stale lock mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.(Prefetcher); !ok {
		t.Error("PreferLocked dropped Prefetcher")
	}
}

func TestLocal_Pyproject(t *testing.T) {
	dir := t.TempDir()
	pyproject := `
[project]
name = "My_App"
version = "0.3.0"
requires-python = ">=3.9"
dependencies = ["requests>=2"]

[project.optional-dependencies]
cli = ["click; python_version >= '3.9'"]
`
	if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644); err != nil {
		t.Fatal(err)
	}

	u := NewUniverse(requirement.Parser{})
	p := NewUniverseProvider(u, Options{})
	p.Register(requirement.SourcePath, NewLocal(LocalOptions{}))
	ctx := context.Background()

	req := requirement.MustParse("my-app @ file://" + dir)
	var got *candidate.Candidate
	for c, err := range p.FindCandidates(ctx, req) {
		if err != nil {
			t.Fatal(err)
		}
		got = c
	}
	if got == nil || got.Version().String() != "0.3.0" {
		t.Fatalf("candidate = %v", got)
	}
	md, err := got.Metadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cli"}, md.ProvidesExtra); diff != "" {
		t.Errorf("extras mismatch (-want +got):\n%s", diff)
	}
	if len(md.Requires) != 2 || md.Requires[1].Marker == nil {
		t.Errorf("Requires = %v", md.Requires)
	}

	wrong := requirement.MustParse("other @ file://" + dir)
	for _, err := range p.FindCandidates(ctx, wrong) {
		if err == nil {
			t.Error("expected a name mismatch error")
		}
	}
}

func TestLocal_DynamicNeedsBuilder(t *testing.T) {
	dir := t.TempDir()
	pyproject := "[project]\nname = \"dyn\"\ndynamic = [\"version\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644); err != nil {
		t.Fatal(err)
	}
	req := requirement.MustParse("dyn @ file://" + dir)

	if _, err := NewLocal(LocalOptions{}).List(context.Background(), req); err == nil {
		t.Error("expected an error without a builder")
	}

	built := NewLocal(LocalOptions{Builder: func(ctx context.Context, d string) (string, error) {
		return "Metadata-Version: 2.1\nName: dyn\nVersion: 1.2.3\nRequires-Dist: attrs\n", nil
	}})
	ls, err := built.List(context.Background(), req)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ls) != 1 || ls[0].Version.String() != "1.2.3" {
		t.Errorf("listings = %+v", ls)
	}
}

func pypiServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/click/json":
			json.NewEncoder(w).Encode(map[string]any{
				"info": map[string]any{"name": "click", "version": "8.1.7"},
				"releases": map[string]any{
					"8.1.7": []map[string]any{
						{"filename": "click-8.1.7-py3-none-any.whl", "packagetype": "bdist_wheel", "requires_python": ">=3.7", "digests": map[string]string{"sha256": "ae"}},
					},
					"8.0.0": []map[string]any{
						{"filename": "click-8.0.0.tar.gz", "packagetype": "sdist", "digests": map[string]string{"sha256": "c1"}},
					},
					"0.1-legacy-junk": []map[string]any{},
				},
			})
		case "/click/8.1.7/json":
			json.NewEncoder(w).Encode(map[string]any{
				"info": map[string]any{
					"name":            "click",
					"version":         "8.1.7",
					"requires_dist":   []string{`colorama; platform_system == "Windows"`},
					"requires_python": ">=3.7",
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestIndex(t *testing.T) {
	server := pypiServer(t)
	client := pypi.NewClient(cache.NewMemoryCache(64), server.URL, time.Hour)
	p := NewIndexProvider(client, Options{}, IndexOptions{})
	defer p.Close()
	ctx := context.Background()

	if diff := cmp.Diff([]string{"8.1.7", "8.0.0"}, versions(t, p, "Click")); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	var top *candidate.Candidate
	for c := range p.FindCandidates(ctx, requirement.MustParse("click")) {
		top = c
		break
	}
	if diff := cmp.Diff([]string{"sha256:ae"}, top.Hashes()); diff != "" {
		t.Errorf("hashes mismatch (-want +got):\n%s", diff)
	}

	linux := marker.Environment{SysPlatform: "linux", PlatformSystem: "Linux", PythonVersion: "3.11"}.WithDefaults()
	deps, err := p.GetDependencies(ctx, top, linux)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Errorf("linux deps = %v, want none", deps)
	}
	windows := linux
	windows.PlatformSystem = "Windows"
	if deps, _ := p.GetDependencies(ctx, top, windows); len(deps) != 1 || deps[0].Name != "colorama" {
		t.Errorf("windows deps = %v, want colorama", deps)
	}

	for _, err := range p.FindCandidates(ctx, requirement.MustParse("missing")) {
		if !errors.Is(err, errors.ErrCodeNotFound) {
			t.Errorf("err = %v, want NOT_FOUND", err)
		}
	}
}

func TestArchiveName(t *testing.T) {
	tests := map[string]string{
		"https://files.example/p/pkg-1.0-py3-none-any.whl":            "pkg-1.0-py3-none-any.whl",
		"https://files.example/p/pkg-1.0.tar.gz#sha256=abc":           "pkg-1.0.tar.gz",
		"https://files.example/download/pkg-1.0.zip?token=secret&x=1": "pkg-1.0.zip",
	}
	for in, want := range tests {
		if got := archiveName(in); got != want {
			t.Errorf("archiveName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithExtraMarker(t *testing.T) {
	tests := []struct{ line, want string }{
		{"click", `click; extra == "cli"`},
		{"click; python_version >= '3.9'", `click; (python_version >= '3.9') and extra == "cli"`},
	}
	for _, tt := range tests {
		if got := withExtraMarker(tt.line, "cli"); got != tt.want {
			t.Errorf("withExtraMarker(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
