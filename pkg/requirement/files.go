package requirement

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// File is a parsed root input: the requirements to resolve, plus the
// lines that were recognized but not turned into requirements.
type File struct {
	Path         string
	Project      string // project name, when the input declares one
	Requirements []*Requirement
	Skipped      []string
}

// ReadRequirementsFile parses a pip requirements file. Comments, blank
// lines and line continuations are handled; "-r other.txt" includes are
// followed relative to the including file; other option lines (-e, -c,
// --index-url, ...) are recorded in Skipped.
func (p Parser) ReadRequirementsFile(path string) (*File, error) {
	out := &File{Path: path}
	if err := p.readRequirements(path, out, map[string]bool{}); err != nil {
		return nil, err
	}
	return out, nil
}

func (p Parser) readRequirements(path string, out *File, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	local := p
	local.BaseDir = filepath.Dir(path)

	var pending strings.Builder
	lineNo := 0
	flush := func() error {
		line := stripComment(pending.String())
		pending.Reset()

		if line == "" {
			return nil
		}
		if strings.HasPrefix(line, "-") {
			if inc, ok := includeTarget(line); ok {
				if !filepath.IsAbs(inc) {
					inc = filepath.Join(local.BaseDir, inc)
				}
				if err := local.readRequirements(inc, out, seen); err != nil {
					return fmt.Errorf("%s:%d: %w", path, lineNo, err)
				}
				return nil
			}
			out.Skipped = append(out.Skipped, line)
			return nil
		}
		r, err := local.Parse(line)
		if err != nil {
			return errors.Wrap(errors.ErrCodeParse, err, "%s:%d", path, lineNo)
		}
		out.Requirements = append(out.Requirements, r)
		return nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\"))
			continue
		}
		pending.WriteString(line)
		if err := flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// A trailing continuation at end of file still ends the requirement.
	return flush()
}

// stripComment removes a "#" comment that starts a line or follows whitespace.
// A "#" directly inside a URL fragment is kept.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "\t#"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func includeTarget(line string) (string, bool) {
	for _, flag := range []string{"-r", "--requirement"} {
		if rest, ok := strings.CutPrefix(line, flag); ok {
			rest = strings.TrimPrefix(rest, "=")
			rest = strings.TrimSpace(rest)
			if rest != "" && rest != line {
				return rest, true
			}
		}
	}
	return "", false
}

type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// ReadPyproject reads [project].dependencies from a pyproject.toml, plus
// the named [project.optional-dependencies] groups.
func (p Parser) ReadPyproject(path string, groups ...string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "parse %s", path)
	}

	local := p
	local.BaseDir = filepath.Dir(path)
	out := &File{Path: path, Project: NormalizeName(doc.Project.Name)}

	lines := doc.Project.Dependencies
	for _, g := range groups {
		deps, ok := doc.Project.OptionalDependencies[g]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "%s: no optional dependency group %q", path, g)
		}
		lines = append(lines, deps...)
	}
	for _, line := range lines {
		r, err := local.Parse(line)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, err, "%s", path)
		}
		out.Requirements = append(out.Requirements, r)
	}
	return out, nil
}

// ReadFile dispatches on the file name: pyproject.toml or a requirements file.
func (p Parser) ReadFile(path string, groups ...string) (*File, error) {
	if filepath.Base(path) == "pyproject.toml" {
		return p.ReadPyproject(path, groups...)
	}
	if len(groups) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "optional dependency groups need a pyproject.toml input")
	}
	return p.ReadRequirementsFile(path)
}
