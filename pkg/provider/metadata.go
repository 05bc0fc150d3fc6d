package provider

import (
	"bufio"
	"context"
	"slices"
	"strings"

	"deps.dev/util/pypi"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// buildMetadata parses raw metadata fields into candidate.Metadata.
// Declared extras are merged with the extras the markers mention.
func buildMetadata(p requirement.Parser, requires []string, requiresPython string, extras, hashes []string) (*candidate.Metadata, error) {
	md := &candidate.Metadata{Hashes: hashes}
	for _, line := range requires {
		r, err := p.Parse(line)
		if err != nil {
			return nil, err
		}
		md.Requires = append(md.Requires, r)
		extras = append(extras, r.Marker.Extras()...)
	}
	spec, err := p.Versions.ParseSpecifier(requiresPython)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid Requires-Python %q", requiresPython)
	}
	md.RequiresPython = spec
	for _, e := range extras {
		if e = requirement.NormalizeExtra(e); e != "" && !slices.Contains(md.ProvidesExtra, e) {
			md.ProvidesExtra = append(md.ProvidesExtra, e)
		}
	}
	slices.Sort(md.ProvidesExtra)
	return md, nil
}

// dependencyLine renders a parsed Requires-Dist entry back to PEP 508 text.
func dependencyLine(d pypi.Dependency) string {
	var b strings.Builder
	b.WriteString(d.Name)
	if d.Extras != "" {
		b.WriteString("[" + d.Extras + "]")
	}
	if d.Constraint != "" {
		b.WriteString(" " + d.Constraint)
	}
	if d.Environment != "" {
		b.WriteString("; " + d.Environment)
	}
	return b.String()
}

// coreMetadata is the subset of a METADATA / PKG-INFO file the resolver needs.
type coreMetadata struct {
	Name, Version  string
	Requires       []string
	RequiresPython string
	Extras         []string
}

// parseCoreMetadata reads an email-header style metadata file.
func parseCoreMetadata(ctx context.Context, data string) (*coreMetadata, error) {
	md, err := pypi.ParseMetadata(ctx, data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid package metadata")
	}
	out := &coreMetadata{Name: md.Name, Version: md.Version}
	for _, d := range md.Dependencies {
		out.Requires = append(out.Requires, dependencyLine(d))
	}
	out.RequiresPython, out.Extras = scanHeaders(data)
	return out, nil
}

// scanHeaders picks the Requires-Python and Provides-Extra fields, which
// pypi.ParseMetadata does not expose.
func scanHeaders(data string) (requiresPython string, extras []string) {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(key) {
		case "requires-python":
			requiresPython = val
		case "provides-extra":
			extras = append(extras, val)
		}
	}
	return requiresPython, extras
}
