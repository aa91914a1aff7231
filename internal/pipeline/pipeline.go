// Package pipeline runs document transformations with one contract for every operation:
// outputs appear atomically, cancellation is observed at page and file boundaries, progress
// never regresses, and every outcome is reported as a models.Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/compress"
	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/merge"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
	"github.com/Lllllllleong/pdftools/internal/protect"
	"github.com/Lllllllleong/pdftools/internal/split"
	"github.com/Lllllllleong/pdftools/internal/staging"
	"github.com/Lllllllleong/pdftools/internal/watermark"
)

// Output name suffixes for operations that derive their output from the input name.
const (
	SuffixCompressed  = "_compressed"
	SuffixWatermarked = "_watermarked"
	SuffixProtected   = "_protected"
	SuffixUnprotected = "_unprotected"
)

// Pipeline owns the engines for one codec. It holds no per-operation state and can run
// operations concurrently.
type Pipeline struct {
	logger     *slog.Logger
	compressor *compress.Compressor
	composer   *merge.Composer
	planner    *split.Planner
	stamper    *watermark.Stamper
	protector  *protect.Protector
}

// New returns a Pipeline using codec. A nil logger uses slog.Default.
func New(codec pdf.Codec, cfg config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:     logger,
		compressor: compress.NewCompressor(codec, logger),
		composer:   merge.NewComposer(codec, logger, cfg.Merge.BatchSize),
		planner:    split.NewPlanner(codec, logger),
		stamper:    watermark.NewStamper(codec, logger),
		protector:  protect.NewProtector(codec, logger),
	}
}

// OutputName derives an output path from input: the input's base name plus suffix, in dir or
// next to the input when dir is empty.
func OutputName(input, dir, suffix string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+suffix+".pdf")
}

// fileOp transforms one input into one output and reports the sizes involved.
type fileOp func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error)

// Compress writes a compressed copy of in to out, or to in's _compressed name when out is
// empty. out may equal in.
func (p *Pipeline) Compress(ctx context.Context, in, out string, s models.CompressionSettings, report progress.Func) models.Result {
	if out == "" {
		out = OutputName(in, "", SuffixCompressed)
	}
	return p.single(ctx, OpCompress, in, out, report, p.compressOp(s))
}

// CompressMany compresses each input to its _compressed name in dir.
func (p *Pipeline) CompressMany(ctx context.Context, inputs []string, dir string, s models.CompressionSettings, report progress.Func) models.Result {
	return p.batch(ctx, OpCompress, inputs, dir, SuffixCompressed, report, p.compressOp(s))
}

func (p *Pipeline) compressOp(s models.CompressionSettings) fileOp {
	return func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			_, err := p.compressor.File(ctx, in, tmp, s, report)
			return err
		})
	}
}

// Watermark writes a watermarked copy of in to out, or to in's _watermarked name.
func (p *Pipeline) Watermark(ctx context.Context, in, out string, ws models.WatermarkSettings, report progress.Func) models.Result {
	if out == "" {
		out = OutputName(in, "", SuffixWatermarked)
	}
	return p.single(ctx, OpWatermark, in, out, report, p.watermarkOp(ws))
}

// WatermarkMany watermarks each input to its _watermarked name in dir.
func (p *Pipeline) WatermarkMany(ctx context.Context, inputs []string, dir string, ws models.WatermarkSettings, report progress.Func) models.Result {
	return p.batch(ctx, OpWatermark, inputs, dir, SuffixWatermarked, report, p.watermarkOp(ws))
}

func (p *Pipeline) watermarkOp(ws models.WatermarkSettings) fileOp {
	return func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			_, err := p.stamper.File(ctx, in, tmp, ws, report)
			return err
		})
	}
}

// Protect writes an encrypted copy of in to out, or to in's _protected name.
func (p *Pipeline) Protect(ctx context.Context, in, out string, s models.ProtectionSettings, report progress.Func) models.Result {
	if out == "" {
		out = OutputName(in, "", SuffixProtected)
	}
	return p.single(ctx, OpProtect, in, out, report, p.protectOp(s))
}

// ProtectMany encrypts each input to its _protected name in dir.
func (p *Pipeline) ProtectMany(ctx context.Context, inputs []string, dir string, s models.ProtectionSettings, report progress.Func) models.Result {
	if _, err := protect.NewPlan(s); err != nil {
		return p.fail(p.logger.With("operation", OpProtect), err, models.Metrics{})
	}
	return p.batch(ctx, OpProtect, inputs, dir, SuffixProtected, report, p.protectOp(s))
}

func (p *Pipeline) protectOp(s models.ProtectionSettings) fileOp {
	return func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			return p.protector.Protect(ctx, in, tmp, s, report)
		})
	}
}

// Unprotect writes a decrypted copy of in to out, or to in's _unprotected name.
func (p *Pipeline) Unprotect(ctx context.Context, in, out, password string, report progress.Func) models.Result {
	if out == "" {
		out = OutputName(in, "", SuffixUnprotected)
	}
	return p.single(ctx, OpUnprotect, in, out, report, p.unprotectOp(password))
}

// UnprotectMany decrypts each input with password to its _unprotected name in dir.
func (p *Pipeline) UnprotectMany(ctx context.Context, inputs []string, dir, password string, report progress.Func) models.Result {
	return p.batch(ctx, OpUnprotect, inputs, dir, SuffixUnprotected, report, p.unprotectOp(password))
}

func (p *Pipeline) unprotectOp(password string) fileOp {
	return func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			return p.protector.Unprotect(ctx, in, tmp, password, report)
		})
	}
}

// SplitRange writes pages r of in, clamped to the document, to out.
func (p *Pipeline) SplitRange(ctx context.Context, in, out string, r models.PageRange, report progress.Func) models.Result {
	return p.single(ctx, OpSplitRange, in, out, report, func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			_, err := p.planner.Range(ctx, in, tmp, r, report)
			return err
		})
	})
}

// Extract writes the pages listed in pages, such as "1,3-5", in ascending order to out.
func (p *Pipeline) Extract(ctx context.Context, in, out, pages string, report progress.Func) models.Result {
	return p.single(ctx, OpExtract, in, out, report, func(ctx context.Context, in, out string, report progress.Func) (models.Metrics, error) {
		return p.produce(in, out, func(tmp string) error {
			_, err := p.planner.Extract(ctx, in, tmp, pages, report)
			return err
		})
	})
}

// SplitEach writes every page of in to {name}_page_{i}.pdf in dir, or next to in when dir is
// empty. Either every page file appears or none does.
func (p *Pipeline) SplitEach(ctx context.Context, in, dir string, report progress.Func) models.Result {
	tr := progress.NewTracker(report)
	logCtx := p.logger.With("operation", OpSplitEach, "input", in)
	if dir == "" {
		dir = filepath.Dir(in)
	}
	orig, err := inputSize(in)
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}

	d, err := staging.NewDir(dir)
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	defer discard(logCtx, d.Discard)

	tr.Report(0)
	if _, err := p.planner.Each(ctx, in, d.Add, tr.Func()); err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	if err := models.CheckCancelled(ctx); err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	outputs, err := d.Commit()
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	metrics := models.Metrics{OriginalBytes: orig}
	for _, o := range outputs {
		if info, err := os.Stat(o); err == nil {
			metrics.NewBytes += info.Size()
		}
	}
	tr.Report(100)
	logCtx.Info("Split document into pages.", "files", len(outputs))
	return models.Succeeded(metrics, outputs...)
}

// MergeOptions chain optional compression after a merge.
type MergeOptions struct {
	CompressAfter bool
	Compression   models.CompressionSettings
}

// Merge writes the pages of every existing input, in order, to out. With CompressAfter the
// merge owns the first half of the progress range and compression the second. If compression
// fails for any reason other than cancellation, the uncompressed merge is kept at out and the
// failure is reported alongside it.
func (p *Pipeline) Merge(ctx context.Context, inputs []string, out string, opts MergeOptions, report progress.Func) models.Result {
	tr := progress.NewTracker(report)
	logCtx := p.logger.With("operation", OpMerge, "output", out, "inputs", len(inputs))

	mergeStage, compressStage := tr.Func(), progress.Func(progress.Nop)
	if opts.CompressAfter {
		mergeStage, compressStage = tr.Stage(0, 50), tr.Stage(50, 100)
	}

	merged, err := staging.NewFile(out)
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	defer discard(logCtx, merged.Discard)

	pages, err := p.composer.Merge(ctx, inputs, merged.Path, mergeStage)
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	size, err := merged.Size()
	if err != nil {
		return p.fail(logCtx, err, models.Metrics{})
	}
	metrics := models.Metrics{OriginalBytes: totalSize(inputs), NewBytes: size}

	if opts.CompressAfter {
		compressed, err := staging.NewFile(out)
		if err != nil {
			return p.fail(logCtx, err, metrics)
		}
		defer discard(logCtx, compressed.Discard)

		_, cerr := p.compressor.File(ctx, merged.Path, compressed.Path, opts.Compression, compressStage)
		var csize int64
		if cerr == nil {
			csize, cerr = compressed.Size()
		}
		if cerr == nil {
			if err := compressed.Commit(); err != nil {
				return p.fail(logCtx, err, metrics)
			}
			metrics.NewBytes = csize
			tr.Report(100)
			logCtx.Info("Merged and compressed documents.", "pages", pages, "bytes", csize)
			return models.Succeeded(metrics, out)
		}
		if models.KindOf(cerr) == models.KindCancelled {
			return p.fail(logCtx, cerr, models.Metrics{})
		}
		logCtx.Warn("Compression after merge failed, keeping the merged document.", "error", cerr)
		if err := merged.Commit(); err != nil {
			return p.fail(logCtx, errors.Join(cerr, err), metrics)
		}
		res := models.Failed(fmt.Errorf("compression after merge: %w", cerr))
		res.Metrics = metrics
		res.Outputs = []string{out}
		return res
	}

	if err := merged.Commit(); err != nil {
		return p.fail(logCtx, err, metrics)
	}
	tr.Report(100)
	logCtx.Info("Merged documents.", "pages", pages, "bytes", size)
	return models.Succeeded(metrics, out)
}

// single runs op for one file with its own tracker.
func (p *Pipeline) single(ctx context.Context, op Operation, in, out string, report progress.Func, run fileOp) models.Result {
	tr := progress.NewTracker(report)
	logCtx := p.logger.With("operation", op, "input", in, "output", out)
	if out == "" {
		return p.fail(logCtx, fmt.Errorf("%w: an output path is required", models.ErrInvalidSettings), models.Metrics{})
	}
	tr.Report(0)
	m, err := run(ctx, in, out, tr.Func())
	if err != nil {
		return p.fail(logCtx, err, m)
	}
	tr.Report(100)
	logCtx.Info("Operation completed.", "originalBytes", m.OriginalBytes, "newBytes", m.NewBytes)
	return models.Succeeded(m, out)
}

// produce stages out, lets write fill the staging path, and commits it once it holds a
// non-empty document. The staging file is removed on every other path.
func (p *Pipeline) produce(in, out string, write func(tmp string) error) (models.Metrics, error) {
	orig, err := inputSize(in)
	if err != nil {
		return models.Metrics{}, err
	}
	f, err := staging.NewFile(out)
	if err != nil {
		return models.Metrics{}, err
	}
	defer discard(p.logger, f.Discard)

	if err := write(f.Path); err != nil {
		return models.Metrics{OriginalBytes: orig}, err
	}
	size, err := f.Size()
	if err != nil {
		return models.Metrics{OriginalBytes: orig}, err
	}
	if err := f.Commit(); err != nil {
		return models.Metrics{OriginalBytes: orig}, err
	}
	return models.Metrics{OriginalBytes: orig, NewBytes: size}, nil
}

func (p *Pipeline) fail(logCtx *slog.Logger, err error, m models.Metrics) models.Result {
	if models.KindOf(err) == models.KindCancelled {
		logCtx.Info("Operation cancelled.")
	} else {
		logCtx.Error("Operation failed.", "kind", models.KindOf(err), "error", err)
	}
	res := models.Failed(err)
	res.Metrics = m
	return res
}

func inputSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", path, models.ErrInputNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func totalSize(paths []string) int64 {
	var n int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			n += info.Size()
		}
	}
	return n
}

func discard(logger *slog.Logger, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn("Failed to remove staging output.", "error", err)
	}
}
