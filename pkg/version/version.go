package version

import (
	"strconv"
	"strings"

	"deps.dev/util/semver"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// Version is a parsed PEP 440 version. The zero Version is invalid and sorts
// before every valid version.
type Version struct {
	sv      *semver.Version
	epoch   int
	release []int
}

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	sv, err := semver.PyPI.Parse(s)
	if err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeParse, err, "invalid version %q", s)
	}
	epoch, release := splitRelease(s)
	return Version{sv: sv, epoch: epoch, release: release}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v Version) String() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.String()
}

// Canon returns the normalized form of the version (e.g. "1.0.0rc1").
func (v Version) Canon() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.Canon(true)
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v.sv == nil }

// Compare returns -1, 0 or +1 following PEP 440 ordering.
func (v Version) Compare(o Version) int {
	switch {
	case v.sv == nil && o.sv == nil:
		return 0
	case v.sv == nil:
		return -1
	case o.sv == nil:
		return 1
	}
	return v.sv.Compare(o.sv)
}

// Equal reports whether v and o compare equal.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// IsPrerelease reports whether v is a pre-release (a, b, rc) or a
// development release.
func (v Version) IsPrerelease() bool {
	if v.sv == nil {
		return false
	}
	return v.sv.IsPrerelease() || strings.Contains(v.sv.Canon(false), ".dev")
}

// HasLocal reports whether v carries a local version label.
func (v Version) HasLocal() bool {
	return v.sv != nil && strings.Contains(v.sv.Canon(true), "+")
}

// Release returns the numeric release segment as written (e.g. [1 2] for "1.2rc1").
func (v Version) Release() []int { return v.release }

// public returns v without its local label.
func (v Version) public() Version {
	if !v.HasLocal() {
		return v
	}
	canon, _, _ := strings.Cut(v.sv.Canon(true), "+")
	p, err := Parse(canon)
	if err != nil {
		return v
	}
	return p
}

// splitRelease extracts the epoch and numeric release segment from a
// version string without interpreting the rest.
func splitRelease(s string) (int, []int) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "v")
	epoch := 0
	if i := strings.IndexByte(s, '!'); i >= 0 {
		epoch, _ = strconv.Atoi(s[:i])
		s = s[i+1:]
	}
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	var release []int
	for _, part := range strings.Split(strings.Trim(s[:end], "."), ".") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		release = append(release, n)
	}
	return epoch, release
}

// hasPrefix reports whether v's release segment starts with prefix,
// padding v with zeros when it is shorter.
func (v Version) hasPrefix(epoch int, prefix []int) bool {
	if v.epoch != epoch {
		return false
	}
	for i, p := range prefix {
		n := 0
		if i < len(v.release) {
			n = v.release[i]
		}
		if n != p {
			return false
		}
	}
	return true
}

// sameRelease reports whether v and o share epoch and release segment,
// ignoring trailing zeros.
func (v Version) sameRelease(o Version) bool {
	a, b := trimZeros(v.release), trimZeros(o.release)
	if v.epoch != o.epoch || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func trimZeros(r []int) []int {
	for len(r) > 0 && r[len(r)-1] == 0 {
		r = r[:len(r)-1]
	}
	return r
}
