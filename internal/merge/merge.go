// Package merge composes many documents into one, in input order, in fixed-size batches so
// that only one source document is open at a time and intermediate outputs stay bounded.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
	"github.com/Lllllllleong/pdftools/internal/staging"
)

// DefaultBatchSize is the number of inputs merged into each intermediate document.
const DefaultBatchSize = 20

// Composer merges documents through a codec.
type Composer struct {
	codec     pdf.Codec
	logger    *slog.Logger
	batchSize int
}

// NewComposer returns a Composer. batchSize values below 2 use DefaultBatchSize.
func NewComposer(codec pdf.Codec, logger *slog.Logger, batchSize int) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 2 {
		batchSize = DefaultBatchSize
	}
	return &Composer{codec: codec, logger: logger, batchSize: batchSize}
}

// Existing returns the paths that exist, in order, logging each one that is skipped.
func Existing(paths []string, logger *slog.Logger) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Skipping missing input file.", "input", p)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Plan splits inputs into consecutive batches of at most size paths.
func Plan(inputs []string, size int) [][]string {
	var batches [][]string
	for len(inputs) > 0 {
		n := min(size, len(inputs))
		batches = append(batches, inputs[:n])
		inputs = inputs[n:]
	}
	return batches
}

// Merge writes the pages of every existing path, in order, to dst and returns the page count.
// Progress counts opened files, including the intermediates of a batched merge.
func (c *Composer) Merge(ctx context.Context, paths []string, dst string, report progress.Func) (int, error) {
	if report == nil {
		report = progress.Nop
	}
	inputs := Existing(paths, c.logger)
	if len(inputs) < 2 {
		return 0, fmt.Errorf("%d of %d inputs found: %w", len(inputs), len(paths), models.ErrInsufficientInputs)
	}
	logCtx := c.logger.With("inputs", len(inputs), "batchSize", c.batchSize)
	report(0)

	if len(inputs) <= c.batchSize {
		done := 0
		return c.compose(ctx, inputs, dst, func() {
			done++
			report(progress.Percent(done, len(inputs)))
		})
	}

	scratch, err := staging.TempDir(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create batch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logCtx.Warn("Failed to remove batch directory.", "dir", scratch, "error", err)
		}
	}()

	batches := Plan(inputs, c.batchSize)
	total := len(inputs) + len(batches)
	done := 0
	step := func() {
		done++
		report(progress.Percent(done, total))
	}

	parts := make([]string, 0, len(batches))
	for i, batch := range batches {
		part := filepath.Join(scratch, fmt.Sprintf("batch-%03d.pdf", i+1))
		n, err := c.compose(ctx, batch, part, step)
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", i+1, err)
		}
		logCtx.Debug("Merged batch.", "batch", i+1, "files", len(batch), "pages", n)
		parts = append(parts, part)
	}
	return c.compose(ctx, parts, dst, step)
}

// compose appends every page of paths to a new document saved at dst. Each source is closed
// before the next one is opened.
func (c *Composer) compose(ctx context.Context, paths []string, dst string, step func()) (int, error) {
	out, err := c.codec.New()
	if err != nil {
		return 0, fmt.Errorf("failed to create output document: %w", err)
	}
	defer out.Close()

	for _, p := range paths {
		if err := models.CheckCancelled(ctx); err != nil {
			return 0, err
		}
		if err := c.append(out, p); err != nil {
			return 0, err
		}
		step()
	}
	if out.PageCount() == 0 {
		return 0, models.ErrEmptyOutput
	}
	if err := out.Save(dst); err != nil {
		return 0, fmt.Errorf("failed to save merged document: %w", err)
	}
	return out.PageCount(), nil
}

func (c *Composer) append(out pdf.Document, path string) error {
	src, err := c.codec.Open(path, "")
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()
	if n := src.PageCount(); n > 0 {
		if err := out.AppendPages(src, 1, n); err != nil {
			return fmt.Errorf("failed to copy pages of %s: %w", path, err)
		}
	}
	return nil
}
