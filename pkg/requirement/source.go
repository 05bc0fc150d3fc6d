package requirement

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// SourceKind tags where a requirement's distribution comes from.
type SourceKind int

const (
	// SourceIndex is the default: versions are discovered on a package index.
	SourceIndex SourceKind = iota
	// SourcePath is a local directory or archive.
	SourcePath
	// SourceURL is a remote archive (wheel or sdist).
	SourceURL
	// SourceVCS is a version-control checkout, e.g. git+https://...@ref.
	SourceVCS
)

func (k SourceKind) String() string {
	switch k {
	case SourcePath:
		return "path"
	case SourceURL:
		return "url"
	case SourceVCS:
		return "vcs"
	default:
		return "index"
	}
}

// Source is an explicit distribution location that overrides version-based
// resolution. A requirement with a Source pins exactly one candidate.
type Source struct {
	Kind         SourceKind `toml:"-"`
	Location     string     `toml:"location"`               // URL, or filesystem path for SourcePath
	VCS          string     `toml:"vcs,omitempty"`          // "git", "hg", ... for SourceVCS
	Ref          string     `toml:"ref,omitempty"`          // branch, tag or commit for SourceVCS
	Subdirectory string     `toml:"subdirectory,omitempty"` // project root inside the archive or checkout
	Hash         string     `toml:"hash,omitempty"`         // "sha256=<hex>" from a URL fragment
}

// ParseSource parses the part after "@" in a direct reference. Relative
// paths are resolved against baseDir.
func ParseSource(raw, baseDir string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, errors.New(errors.ErrCodeParse, "empty source reference")
	}

	if vcs, rest, ok := strings.Cut(raw, "+"); ok && isVCS(vcs) {
		return parseVCS(vcs, rest)
	}

	switch {
	case strings.HasPrefix(raw, "file://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Source{}, errors.Wrap(errors.ErrCodeParse, err, "invalid file URL %q", raw)
		}
		return Source{Kind: SourcePath, Location: filepath.Clean(u.Path), Subdirectory: fragment(u, "subdirectory")}, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Source{}, errors.Wrap(errors.ErrCodeParse, err, "invalid URL %q", raw)
		}
		src := Source{Kind: SourceURL, Subdirectory: fragment(u, "subdirectory")}
		for _, algo := range []string{"sha256", "sha384", "sha512"} {
			if h := fragment(u, algo); h != "" {
				src.Hash = algo + "=" + h
				break
			}
		}
		u.Fragment = ""
		src.Location = u.String()
		return src, nil
	case strings.Contains(raw, "://"):
		return Source{}, errors.New(errors.ErrCodeUnsupported, "unsupported source scheme in %q", raw)
	}

	path := raw
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return Source{Kind: SourcePath, Location: filepath.Clean(path)}, nil
}

func isVCS(s string) bool {
	switch s {
	case "git", "hg", "svn", "bzr":
		return true
	}
	return false
}

func parseVCS(vcs, rest string) (Source, error) {
	u, err := url.Parse(rest)
	if err != nil || u.Scheme == "" {
		return Source{}, errors.New(errors.ErrCodeParse, "invalid %s URL %q", vcs, rest)
	}
	src := Source{Kind: SourceVCS, VCS: vcs, Subdirectory: fragment(u, "subdirectory")}
	u.Fragment = ""
	// The ref follows the last "@" in the path; an "@" in the host part is userinfo.
	if i := strings.LastIndex(u.Path, "@"); i >= 0 {
		src.Ref = u.Path[i+1:]
		u.Path = u.Path[:i]
	}
	src.Location = u.String()
	return src, nil
}

func fragment(u *url.URL, key string) string {
	vals, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return ""
	}
	return vals.Get(key)
}

// String renders the source as a direct-reference URL. Equal sources
// render identically, so String doubles as the identity of the source.
func (s Source) String() string {
	var b strings.Builder
	switch s.Kind {
	case SourceIndex:
		return ""
	case SourcePath:
		b.WriteString("file://")
		b.WriteString(filepath.ToSlash(s.Location))
	case SourceVCS:
		b.WriteString(s.VCS)
		b.WriteByte('+')
		b.WriteString(s.Location)
		if s.Ref != "" {
			b.WriteByte('@')
			b.WriteString(s.Ref)
		}
	default:
		b.WriteString(s.Location)
	}
	var frag []string
	if s.Hash != "" {
		frag = append(frag, s.Hash)
	}
	if s.Subdirectory != "" {
		frag = append(frag, "subdirectory="+s.Subdirectory)
	}
	if len(frag) > 0 {
		b.WriteByte('#')
		b.WriteString(strings.Join(frag, "&"))
	}
	return b.String()
}

// Same reports whether s and o point at the same distribution. Hash
// fragments are ignored.
func (s Source) Same(o Source) bool {
	s.Hash, o.Hash = "", ""
	return s.String() == o.String()
}
