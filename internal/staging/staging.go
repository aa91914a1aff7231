// Package staging writes operation outputs next to their destination under a unique
// temporary name and promotes them by rename only once they are known to be good.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// File is a staging artifact for a single destination path.
type File struct {
	Dest string
	Path string
	done bool
}

// NewFile reserves a staging path in dest's directory, creating the directory if needed.
// Nothing is written until the caller saves to Path.
func NewFile(dest string) (*File, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &File{Dest: dest, Path: tempName(dir, filepath.Base(dest))}, nil
}

// Size returns the staged artifact's size, failing with ErrEmptyOutput when it is missing or
// empty.
func (f *File) Size() (int64, error) {
	return nonEmpty(f.Path)
}

// Commit verifies the artifact is non-empty and renames it over Dest.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	if _, err := nonEmpty(f.Path); err != nil {
		return err
	}
	if err := os.Rename(f.Path, f.Dest); err != nil {
		return fmt.Errorf("failed to move staged output to %s: %w", f.Dest, err)
	}
	f.done = true
	return nil
}

// Discard removes the artifact. It is a no-op after Commit and safe to defer.
func (f *File) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	return removeIfExists(f.Path)
}

// Dir stages a set of outputs that must appear in a destination directory together.
type Dir struct {
	Dest  string
	Path  string
	names []string
	done  bool
}

// NewDir creates a private staging directory inside dest.
func NewDir(dest string) (*Dir, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dest, err)
	}
	path, err := os.MkdirTemp(dest, ".staging-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Dir{Dest: dest, Path: path}, nil
}

// Add returns the staging path for an output that will be committed as name.
func (d *Dir) Add(name string) string {
	d.names = append(d.names, name)
	return filepath.Join(d.Path, name)
}

// Commit moves every staged output into Dest. If any move fails, outputs already moved are
// removed again so that either all or none become visible.
func (d *Dir) Commit() ([]string, error) {
	if d.done {
		return nil, errors.New("staging directory already closed")
	}
	for _, name := range d.names {
		if _, err := nonEmpty(filepath.Join(d.Path, name)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	moved := make([]string, 0, len(d.names))
	for _, name := range d.names {
		dst := filepath.Join(d.Dest, name)
		if err := os.Rename(filepath.Join(d.Path, name), dst); err != nil {
			for _, m := range moved {
				_ = os.Remove(m)
			}
			return nil, fmt.Errorf("failed to move staged output to %s: %w", dst, err)
		}
		moved = append(moved, dst)
	}
	d.done = true
	return moved, os.RemoveAll(d.Path)
}

// Discard removes the staging directory and everything in it. Safe to defer.
func (d *Dir) Discard() error {
	if d.done {
		return nil
	}
	d.done = true
	return os.RemoveAll(d.Path)
}

// TempDir creates a uniquely named scratch directory next to dest for intermediate files.
func TempDir(dest string) (string, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return os.MkdirTemp(dir, "."+strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))+"-parts-*")
}

func tempName(dir, base string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
}

func nonEmpty(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, models.ErrEmptyOutput
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat staged output: %w", err)
	}
	if info.Size() == 0 {
		return 0, models.ErrEmptyOutput
	}
	return info.Size(), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
