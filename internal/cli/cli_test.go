package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/graph"
	"github.com/matzehuels/stacklock/pkg/lockfile"
	"github.com/matzehuels/stacklock/pkg/resolver"
)

const universeTOML = `
[[package]]
name = "app"
version = "1.0"
requires = ["requests[socks]>=2", "click"]

[[package]]
name = "requests"
version = "2.31.0"
requires = ["idna>=2.5", 'pysocks>=1.5.6; extra == "socks"']

[[package]]
name = "idna"
version = "3.6"

[[package]]
name = "pysocks"
version = "1.7.1"

[[package]]
name = "click"
version = "8.1.7"
requires = ['colorama; platform_system == "Windows"']

[[package]]
name = "colorama"
version = "0.4.6"

[[package]]
name = "legacy"
version = "1.0"
requires = ["idna<3"]

[[package]]
name = "pinned"
version = "1.0"

[[package]]
name = "pinned"
version = "2.0"
`

// workspace is a temp dir with a config that disables caching and an
// offline package universe.
type workspace struct {
	dir      string
	config   string
	universe string
	lock     string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:      dir,
		config:   filepath.Join(dir, "config.toml"),
		universe: filepath.Join(dir, "universe.toml"),
		lock:     filepath.Join(dir, lockfile.DefaultName),
	}
	if err := os.WriteFile(w.config, []byte("cache = \"none\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(w.universe, []byte(universeTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	return w
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", w.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (w *workspace) lockArgs(extra ...string) []string {
	args := []string{"lock", "--index-file", w.universe, "-l", w.lock, "--python-version", "3.11", "--platform", "linux"}
	return append(args, extra...)
}

func TestLockCheckWhyGraph(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, w.lockArgs("-r", "app")...)
	if err != nil {
		t.Fatalf("lock: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Locked") {
		t.Errorf("lock output: %s", out)
	}
	lf, err := lockfile.ReadFile(w.lock)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, ok := lf.Package("colorama"); ok {
		t.Error("colorama locked for linux")
	}
	if p, _ := lf.Package("requests"); p.Version != "2.31.0" {
		t.Errorf("requests = %q", p.Version)
	}

	checkArgs := []string{"check", "-l", w.lock, "--python-version", "3.11", "--platform", "linux"}
	if out, err := w.run(t, append(checkArgs, "-r", "app")...); err != nil {
		t.Errorf("check: %v\n%s", err, out)
	}
	if _, err := w.run(t, append(checkArgs, "-r", "app", "-r", "idna")...); !errors.Is(err, errors.ErrCodeLockOutdated) {
		t.Errorf("check with new root: err = %v, want LOCK_OUTDATED", err)
	}

	out, err = w.run(t, "why", "PySocks", "-l", w.lock)
	if err != nil {
		t.Fatalf("why: %v", err)
	}
	for _, want := range []string{"pysocks", "app", "requests"} {
		if !strings.Contains(out, want) {
			t.Errorf("why output missing %q:\n%s", want, out)
		}
	}
	if _, err := w.run(t, "why", "numpy", "-l", w.lock); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("why numpy: err = %v, want NOT_FOUND", err)
	}

	out, err = w.run(t, "graph", "-l", w.lock)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !strings.Contains(out, `"app" -> "requests";`) {
		t.Errorf("dot output:\n%s", out)
	}

	out, err = w.run(t, "graph", "-f", "json", "-l", w.lock)
	if err != nil {
		t.Fatalf("graph json: %v", err)
	}
	g, err := graph.ReadJSON(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(g.Cycles()) != 0 {
		t.Errorf("unexpected cycles: %v", g.Cycles())
	}

	if _, err := w.run(t, "graph", "-f", "gif", "-l", w.lock); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("graph gif: err = %v, want INVALID_INPUT", err)
	}
}

func TestLock_Conflict(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, w.lockArgs("-r", "app", "-r", "legacy")...)

	var impossible *resolver.ImpossibleError
	if !errors.As(err, &impossible) {
		t.Fatalf("err = %v, want *resolver.ImpossibleError", err)
	}
	msg := FormatError(err)
	for _, want := range []string{"Could not find a consistent set of versions", "idna", "legacy 1.0 requires idna<3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
	if _, statErr := os.Stat(w.lock); !os.IsNotExist(statErr) {
		t.Error("lockfile written after failed resolution")
	}
}

func TestLock_DryRun(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, w.lockArgs("-r", "idna", "--dry-run")...)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !strings.Contains(out, "[[package]]") || !strings.Contains(out, `name = "idna"`) {
		t.Errorf("dry run output:\n%s", out)
	}
	if _, err := os.Stat(w.lock); !os.IsNotExist(err) {
		t.Error("dry run wrote a lockfile")
	}
}

func TestLock_PrefersLockedVersions(t *testing.T) {
	w := newWorkspace(t)
	if _, err := w.run(t, w.lockArgs("-r", "pinned<2")...); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"KeepsLocked", nil, "1.0"},
		{"Upgrade", []string{"--upgrade"}, "2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := w.run(t, w.lockArgs(append([]string{"-r", "pinned", "--dry-run"}, tt.args...)...)...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, `version = "`+tt.want+`"`) {
				t.Errorf("want pinned %s:\n%s", tt.want, out)
			}
		})
	}
}

func TestLock_NoRoots(t *testing.T) {
	w := newWorkspace(t)
	t.Chdir(w.dir)
	if _, err := w.run(t, w.lockArgs()...); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestLock_RequirementsFile(t *testing.T) {
	w := newWorkspace(t)
	reqs := filepath.Join(w.dir, "requirements.txt")
	if err := os.WriteFile(reqs, []byte("# web\nclick\nidna>=3 \\\n  ; python_version >= \"3.8\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.run(t, w.lockArgs(reqs)...); err != nil {
		t.Fatalf("lock: %v", err)
	}
	lf, err := lockfile.ReadFile(w.lock)
	if err != nil {
		t.Fatal(err)
	}
	if len(lf.Packages) != 2 {
		t.Errorf("packages = %+v", lf.Packages)
	}
}

func TestEnvCommand(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "env", "--python-version", "3.12.1", "--platform", "win32")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"win32", "3.12.1", "Windows", "nt"} {
		if !strings.Contains(out, want) {
			t.Errorf("env output missing %q:\n%s", want, out)
		}
	}

	out, err = w.run(t, "env", "--toml", "--python-version", "3.10")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[environment]") || !strings.Contains(out, `python_version = "3.10"`) {
		t.Errorf("toml output:\n%s", out)
	}

	if _, err := w.run(t, "env", "--platform", "plan9"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown platform: err = %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "disabled" {
		t.Errorf("cache path = %q", out)
	}
	out, err = w.run(t, "cache", "clear")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "disabled") {
		t.Errorf("cache clear = %q", out)
	}
}

func TestFormatError_Canceled(t *testing.T) {
	if got := FormatError(context.Canceled); !strings.Contains(got, "interrupted") {
		t.Errorf("FormatError = %q", got)
	}
}
