package staging

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Lllllllleong/pdftools/internal/models"
)

func TestFileCommit(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "merged.pdf")

	f, err := NewFile(dest)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if filepath.Dir(f.Path) != filepath.Dir(dest) {
		t.Errorf("staging path %s not next to destination", f.Path)
	}
	if err := os.WriteFile(f.Path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Errorf("staging file still present after commit")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "%PDF-1.7" {
		t.Errorf("destination = %q, %v", data, err)
	}
	if err := f.Discard(); err != nil {
		t.Errorf("Discard() after Commit() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("Discard() after Commit() removed destination: %v", err)
	}
}

func TestFileCommitRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Commit(); !errors.Is(err, models.ErrEmptyOutput) {
		t.Errorf("Commit() without output error = %v, want ErrEmptyOutput", err)
	}
	if err := os.WriteFile(f.Path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Commit(); !errors.Is(err, models.ErrEmptyOutput) {
		t.Errorf("Commit() with empty output error = %v, want ErrEmptyOutput", err)
	}
	if err := f.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "original" {
		t.Errorf("destination changed to %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the destination", len(entries))
	}
}

func TestDirCommitAndDiscard(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	for _, name := range []string{"a_page_1.pdf", "a_page_2.pdf"} {
		if err := os.WriteFile(d.Add(name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	moved, err := d.Commit()
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a_page_1.pdf"), filepath.Join(dir, "a_page_2.pdf")}
	sort.Strings(moved)
	if diff := cmp.Diff(want, moved); diff != "" {
		t.Errorf("moved mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("staging directory left behind")
	}

	d2, err := NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d2.Add("b_page_1.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := d2.Discard(); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b_page_1.pdf")); !os.IsNotExist(err) {
		t.Errorf("discarded output became visible")
	}
}
