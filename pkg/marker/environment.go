package marker

import (
	"fmt"
	"runtime"
	"strings"
)

// Environment is the target platform every marker is evaluated against.
// Field tags double as the PEP 508 variable names so an Environment can be
// decoded straight from a [environment] config table.
type Environment struct {
	OSName                       string `toml:"os_name" json:"os_name"`
	SysPlatform                  string `toml:"sys_platform" json:"sys_platform"`
	PlatformMachine              string `toml:"platform_machine" json:"platform_machine"`
	PlatformPythonImplementation string `toml:"platform_python_implementation" json:"platform_python_implementation"`
	PlatformRelease              string `toml:"platform_release" json:"platform_release"`
	PlatformSystem               string `toml:"platform_system" json:"platform_system"`
	PlatformVersion              string `toml:"platform_version" json:"platform_version"`
	PythonVersion                string `toml:"python_version" json:"python_version"`
	PythonFullVersion            string `toml:"python_full_version" json:"python_full_version"`
	ImplementationName           string `toml:"implementation_name" json:"implementation_name"`
	ImplementationVersion        string `toml:"implementation_version" json:"implementation_version"`
}

// Variables lists the environment variable names markers may reference,
// in addition to "extra".
var Variables = []string{
	"implementation_name",
	"implementation_version",
	"os_name",
	"platform_machine",
	"platform_python_implementation",
	"platform_release",
	"platform_system",
	"platform_version",
	"python_full_version",
	"python_version",
	"sys_platform",
}

// Default returns a CPython 3.11 environment for the host operating system.
func Default() Environment {
	env := Environment{
		PythonVersion:      "3.11",
		ImplementationName: "cpython",
	}
	switch runtime.GOOS {
	case "windows":
		env.OSName, env.SysPlatform, env.PlatformSystem = "nt", "win32", "Windows"
	case "darwin":
		env.OSName, env.SysPlatform, env.PlatformSystem = "posix", "darwin", "Darwin"
	default:
		env.OSName, env.SysPlatform, env.PlatformSystem = "posix", "linux", "Linux"
	}
	switch runtime.GOARCH {
	case "arm64":
		env.PlatformMachine = "aarch64"
		if runtime.GOOS == "darwin" {
			env.PlatformMachine = "arm64"
		}
	case "386":
		env.PlatformMachine = "i686"
	default:
		env.PlatformMachine = "x86_64"
	}
	return env.WithDefaults()
}

// WithDefaults fills fields derivable from the ones that are set: the full
// Python version from the short one, the implementation version from the
// full version, and the Python implementation from the implementation name.
func (e Environment) WithDefaults() Environment {
	if e.PythonFullVersion == "" && e.PythonVersion != "" {
		e.PythonFullVersion = e.PythonVersion + ".0"
	}
	if e.PythonVersion == "" && e.PythonFullVersion != "" {
		parts := strings.SplitN(e.PythonFullVersion, ".", 3)
		if len(parts) >= 2 {
			e.PythonVersion = parts[0] + "." + parts[1]
		}
	}
	if e.ImplementationName == "" {
		e.ImplementationName = "cpython"
	}
	if e.ImplementationVersion == "" {
		e.ImplementationVersion = e.PythonFullVersion
	}
	if e.PlatformPythonImplementation == "" {
		switch e.ImplementationName {
		case "cpython":
			e.PlatformPythonImplementation = "CPython"
		case "pypy":
			e.PlatformPythonImplementation = "PyPy"
		default:
			e.PlatformPythonImplementation = e.ImplementationName
		}
	}
	return e
}

// Lookup returns the value of a marker variable.
func (e Environment) Lookup(name string) (string, bool) {
	switch name {
	case "os_name":
		return e.OSName, true
	case "sys_platform":
		return e.SysPlatform, true
	case "platform_machine":
		return e.PlatformMachine, true
	case "platform_python_implementation":
		return e.PlatformPythonImplementation, true
	case "platform_release":
		return e.PlatformRelease, true
	case "platform_system":
		return e.PlatformSystem, true
	case "platform_version":
		return e.PlatformVersion, true
	case "python_version":
		return e.PythonVersion, true
	case "python_full_version":
		return e.PythonFullVersion, true
	case "implementation_name":
		return e.ImplementationName, true
	case "implementation_version":
		return e.ImplementationVersion, true
	}
	return "", false
}

// Set assigns a marker variable by name, as used by --env key=value flags.
func (e *Environment) Set(name, value string) error {
	switch name {
	case "os_name":
		e.OSName = value
	case "sys_platform":
		e.SysPlatform = value
	case "platform_machine":
		e.PlatformMachine = value
	case "platform_python_implementation":
		e.PlatformPythonImplementation = value
	case "platform_release":
		e.PlatformRelease = value
	case "platform_system":
		e.PlatformSystem = value
	case "platform_version":
		e.PlatformVersion = value
	case "python_version":
		e.PythonVersion = value
	case "python_full_version":
		e.PythonFullVersion = value
	case "implementation_name":
		e.ImplementationName = value
	case "implementation_version":
		e.ImplementationVersion = value
	default:
		return unknownVariable(name)
	}
	return nil
}

// String renders the environment as sorted name=value pairs.
func (e Environment) String() string {
	parts := make([]string, 0, len(Variables))
	for _, name := range Variables {
		v, _ := e.Lookup(name)
		parts = append(parts, fmt.Sprintf("%s=%q", name, v))
	}
	return strings.Join(parts, " ")
}
