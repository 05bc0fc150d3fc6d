package lockfile

import (
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/marker"
	"github.com/matzehuels/stacklock/pkg/requirement"
	"github.com/matzehuels/stacklock/pkg/version"
)

// Validate checks the structure of a decoded lockfile: a known schema
// version, sorted unique package names with parseable versions, and
// dependencies that refer to locked packages.
func (lf *Lockfile) Validate() error {
	if lf.Version != Version {
		return errors.New(errors.ErrCodeUnsupported, "lockfile version %d, want %d", lf.Version, Version)
	}
	for i, p := range lf.Packages {
		if p.Name == "" {
			return errors.New(errors.ErrCodeInvalidInput, "package %d has no name", i)
		}
		if i > 0 && strings.Compare(lf.Packages[i-1].Name, p.Name) >= 0 {
			return errors.New(errors.ErrCodeInvalidInput, "packages not sorted at %q", p.Name)
		}
		if _, err := version.Parse(p.Version); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "package %s", p.Name)
		}
		if p.Markers != "" {
			if _, err := marker.Parse(p.Markers); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "package %s markers", p.Name)
			}
		}
	}
	for _, p := range lf.Packages {
		for _, dep := range p.Dependencies {
			if _, ok := lf.Package(dep); !ok {
				return errors.New(errors.ErrCodeInvalidInput, "package %s depends on %s, which is not locked", p.Name, dep)
			}
		}
	}
	return nil
}

// Check reports whether lf was produced from roots and env. A mismatch is
// an ErrCodeLockOutdated error naming what changed.
func (lf *Lockfile) Check(roots []*requirement.Requirement, env marker.Environment) error {
	if lf.InputHash == InputHash(roots, env) {
		return nil
	}
	if lf.Environment != env {
		return errors.New(errors.ErrCodeLockOutdated, "lockfile was generated for a different environment")
	}
	want := rootStrings(roots)
	var added, removed []string
	for _, r := range want {
		if !slices.Contains(lf.Roots, r) {
			added = append(added, r)
		}
	}
	for _, r := range lf.Roots {
		if !slices.Contains(want, r) {
			removed = append(removed, r)
		}
	}
	if len(added)+len(removed) == 0 {
		return errors.New(errors.ErrCodeLockOutdated, "lockfile input hash does not match")
	}
	var parts []string
	if len(added) > 0 {
		parts = append(parts, "added "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "removed "+strings.Join(removed, ", "))
	}
	return errors.New(errors.ErrCodeLockOutdated, "requirements changed: %s", strings.Join(parts, "; "))
}

// Locked returns the pinned version of every package, keyed by name, for
// provider.PreferLocked.
func (lf *Lockfile) Locked() map[string]version.Version {
	out := make(map[string]version.Version, len(lf.Packages))
	for _, p := range lf.Packages {
		if v, err := version.Parse(p.Version); err == nil {
			out[p.Name] = v
		}
	}
	return out
}
