package lockfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// DefaultName is the lockfile name used when none is given.
const DefaultName = "stacklock.lock"

const header = "# This file is generated by stacklock. Do not edit it by hand.\n\n"

// Encode writes lf as TOML.
func (lf *Lockfile) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	enc := toml.NewEncoder(bw)
	enc.Indent = ""
	if err := enc.Encode(lf); err != nil {
		return fmt.Errorf("encode lockfile: %w", err)
	}
	return bw.Flush()
}

// Decode reads a TOML lockfile and validates it.
func Decode(r io.Reader) (*Lockfile, error) {
	var lf Lockfile
	if _, err := toml.NewDecoder(r).Decode(&lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "decode lockfile")
	}
	if err := lf.Validate(); err != nil {
		return nil, err
	}
	return &lf, nil
}

// ReadFile reads and validates the lockfile at path.
func ReadFile(path string) (*Lockfile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "lockfile %s", path)
		}
		return nil, err
	}
	defer f.Close()
	lf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lf, nil
}

// WriteFile writes lf to path atomically: the content goes to a temporary
// file in the same directory, is synced, and is then renamed over path.
// On error path is left untouched.
func WriteFile(path string, lf *Lockfile) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp lockfile: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = lf.Encode(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync lockfile: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close lockfile: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod lockfile: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename lockfile: %w", err)
	}
	return nil
}
