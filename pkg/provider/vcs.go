package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// VCSOptions configures a VCS adapter.
type VCSOptions struct {
	// Local reads metadata from the checked-out tree.
	Local *Local
	// Git is the git executable. Empty means "git" from PATH.
	Git string
	// Logger receives debug output. Nil discards it.
	Logger *log.Logger
}

// VCS serves git+ requirements by checking out the requested ref into a
// temporary directory and reading it like a local path. The resolved
// commit is recorded as a "git:<sha>" hash.
type VCS struct {
	opts VCSOptions
	log  *log.Logger

	mu        sync.Mutex
	checkouts map[string]checkout
}

type checkout struct {
	dir    string
	commit string
}

// NewVCS returns a VCS adapter. Call Close to remove checkouts.
func NewVCS(opts VCSOptions) *VCS {
	if opts.Git == "" {
		opts.Git = "git"
	}
	if opts.Local == nil {
		opts.Local = NewLocal(LocalOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &VCS{opts: opts, log: logger, checkouts: make(map[string]checkout)}
}

func (v *VCS) List(ctx context.Context, r *requirement.Requirement) ([]Listing, error) {
	if r.Source == nil || r.Source.Kind != requirement.SourceVCS {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s has no VCS source", r.Name)
	}
	co, err := v.checkout(ctx, r.Source)
	if err != nil {
		return nil, err
	}
	md, err := v.opts.Local.load(ctx, co.dir, r.Source.Subdirectory)
	if err != nil {
		return nil, err
	}
	return listingFor(v.opts.Local.opts.Parser, r, md, []string{"git:" + co.commit})
}

func (v *VCS) Fetch(ctx context.Context, c *candidate.Candidate) (*candidate.Metadata, error) {
	src := c.Source()
	co, err := v.checkout(ctx, src)
	if err != nil {
		return nil, err
	}
	md, err := v.opts.Local.load(ctx, co.dir, src.Subdirectory)
	if err != nil {
		return nil, err
	}
	return buildMetadata(v.opts.Local.opts.Parser, md.Requires, md.RequiresPython, md.Extras, []string{"git:" + co.commit})
}

func (v *VCS) checkout(ctx context.Context, src *requirement.Source) (checkout, error) {
	if src.VCS != "git" {
		return checkout{}, errors.New(errors.ErrCodeUnsupported, "%s checkouts are not supported", src.VCS)
	}
	key := src.Location + "@" + src.Ref
	v.mu.Lock()
	defer v.mu.Unlock()
	if co, ok := v.checkouts[key]; ok {
		return co, nil
	}

	dir, err := os.MkdirTemp("", "stacklock-vcs-")
	if err != nil {
		return checkout{}, err
	}
	v.log.Debug("cloning", "url", src.Location, "ref", src.Ref)
	if _, err := v.git(ctx, "", "clone", "--quiet", src.Location, dir); err != nil {
		os.RemoveAll(dir)
		return checkout{}, errors.Wrap(errors.ErrCodeMetadataFetch, err, "clone %s", src.Location)
	}
	if src.Ref != "" {
		if _, err := v.git(ctx, dir, "checkout", "--quiet", src.Ref); err != nil {
			os.RemoveAll(dir)
			return checkout{}, errors.Wrap(errors.ErrCodeMetadataFetch, err, "checkout %s@%s", src.Location, src.Ref)
		}
	}
	commit, err := v.git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		os.RemoveAll(dir)
		return checkout{}, errors.Wrap(errors.ErrCodeMetadataFetch, err, "rev-parse %s", src.Location)
	}

	co := checkout{dir: dir, commit: commit}
	v.checkouts[key] = co
	return co, nil
}

func (v *VCS) git(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.opts.Git, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Close removes every checkout.
func (v *VCS) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var first error
	for key, co := range v.checkouts {
		if err := os.RemoveAll(filepath.Clean(co.dir)); err != nil && first == nil {
			first = err
		}
		delete(v.checkouts, key)
	}
	return first
}

var (
	_ Adapter   = (*VCS)(nil)
	_ io.Closer = (*VCS)(nil)
)
