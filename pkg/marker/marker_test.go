package marker

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/stacklock/pkg/errors"
)

func linux311() Environment {
	return Environment{
		OSName:          "posix",
		SysPlatform:     "linux",
		PlatformSystem:  "Linux",
		PlatformMachine: "x86_64",
		PythonVersion:   "3.11",
	}.WithDefaults()
}

func TestEvaluate(t *testing.T) {
	env := linux311()
	tests := []struct {
		expr string
		want bool
	}{
		{`python_version < "3.8"`, false},
		{`python_version >= "3.8"`, true},
		{`python_version == "3.11"`, true},
		{`python_full_version >= "3.11.0"`, true},
		{`sys_platform == "win32"`, false},
		{`sys_platform != "win32"`, true},
		{`os_name == "posix" and python_version > "3"`, true},
		{`sys_platform == "win32" or sys_platform == "linux"`, true},
		{`(sys_platform == "win32" or sys_platform == "darwin") and python_version >= "3.8"`, false},
		{`"linux" in sys_platform`, true},
		{`"x86" not in platform_machine`, false},
		{`'3.9' <= python_version`, true},
		{`platform_python_implementation == "CPython"`, true},
		{`implementation_name == "pypy"`, false},
		{`python_version ~= "3.10"`, true},
		{`python_version === "3.11"`, true},
		{`os.name == "posix"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, env)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Pure(t *testing.T) {
	m := MustParse(`python_version >= "3.8" and sys_platform == "linux"`)
	env := linux311()
	first := m.Evaluate(env, nil)
	for range 10 {
		if m.Evaluate(env, nil) != first {
			t.Fatal("evaluation is not deterministic")
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		`python_versio < "3.8"`,
		`python_version <`,
		`python_version "3.8"`,
		`(python_version < "3.8"`,
		`python_version < "3.8`,
		`extra > "test"`,
		`extra == python_version`,
		`python_version < "3.8" garbage`,
		`foo == "bar"`,
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			if err == nil {
				t.Fatalf("Parse(%s) succeeded, want error", expr)
			}
			if !errors.Is(err, errors.ErrCodeMarker) {
				t.Errorf("Parse(%s) code = %v, want %v", expr, errors.GetCode(err), errors.ErrCodeMarker)
			}
		})
	}
}

func TestExtras(t *testing.T) {
	m := MustParse(`extra == "Socks" or (extra == "test" and python_version >= "3.8")`)
	if diff := cmp.Diff([]string{"socks", "test"}, m.Extras()); diff != "" {
		t.Errorf("Extras() mismatch (-want +got):\n%s", diff)
	}

	env := linux311()
	if m.Evaluate(env, nil) {
		t.Error("extra marker should be false without extras")
	}
	if !m.Evaluate(env, []string{"socks"}) {
		t.Error("extra marker should hold when socks requested")
	}
	if !m.Evaluate(env, []string{"test"}) {
		t.Error("extra marker should hold when test requested")
	}

	neq := MustParse(`extra != "docs"`)
	if !neq.Evaluate(env, nil) || neq.Evaluate(env, []string{"docs"}) {
		t.Error("extra != semantics wrong")
	}
}

func TestString(t *testing.T) {
	m := MustParse(`(sys_platform=='win32' or os_name=="nt")and python_version<'3.9'`)
	want := `(sys_platform == "win32" or os_name == "nt") and python_version < "3.9"`
	if got := m.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}

	var nilMarker *Marker
	if nilMarker.String() != "" || !nilMarker.Evaluate(linux311(), nil) {
		t.Error("nil marker should render empty and evaluate true")
	}
}

func TestAndOr(t *testing.T) {
	a := MustParse(`sys_platform == "linux"`)
	b := MustParse(`python_version >= "3.8"`)

	if got := And(a, b).String(); got != `sys_platform == "linux" and python_version >= "3.8"` {
		t.Errorf("And = %s", got)
	}
	if got := Or(a, b).String(); got != `sys_platform == "linux" or python_version >= "3.8"` {
		t.Errorf("Or = %s", got)
	}
	if And(nil, b) != b || And(a, nil) != a {
		t.Error("And with nil should return the other operand")
	}
	if Or(a, nil) != nil {
		t.Error("Or with an unconditional operand should be unconditional")
	}
	if And(a, MustParse(`sys_platform=="linux"`)) != a {
		t.Error("And of equal markers should collapse")
	}
}

func TestEnvironment_SetLookup(t *testing.T) {
	var env Environment
	for _, name := range Variables {
		if err := env.Set(name, "v-"+name); err != nil {
			t.Fatalf("Set(%s): %v", name, err)
		}
		got, ok := env.Lookup(name)
		if !ok || got != "v-"+name {
			t.Errorf("Lookup(%s) = %q, %v", name, got, ok)
		}
	}
	if err := env.Set("nope", "x"); !errors.Is(err, errors.ErrCodeMarker) {
		t.Errorf("Set(nope) error = %v, want marker error", err)
	}
}

func TestEnvironment_WithDefaults(t *testing.T) {
	env := Environment{PythonFullVersion: "3.12.4", ImplementationName: "pypy"}.WithDefaults()
	if env.PythonVersion != "3.12" {
		t.Errorf("PythonVersion = %q", env.PythonVersion)
	}
	if env.ImplementationVersion != "3.12.4" {
		t.Errorf("ImplementationVersion = %q", env.ImplementationVersion)
	}
	if env.PlatformPythonImplementation != "PyPy" {
		t.Errorf("PlatformPythonImplementation = %q", env.PlatformPythonImplementation)
	}
}

func TestWithoutExtras(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{`extra == "socks"`, ""},
		{`python_version < "3.8" and extra == "socks"`, `python_version < "3.8"`},
		{`extra == "socks" and (sys_platform == "win32" or os_name == "nt")`, `sys_platform == "win32" or os_name == "nt"`},
		{`extra == "a" or sys_platform == "linux"`, ""},
		{`sys_platform == "linux"`, `sys_platform == "linux"`},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if got := MustParse(tt.expr).WithoutExtras().String(); got != tt.want {
				t.Errorf("WithoutExtras = %q, want %q", got, tt.want)
			}
		})
	}
	var nilMarker *Marker
	if nilMarker.WithoutExtras() != nil {
		t.Error("nil marker should stay nil")
	}
}
