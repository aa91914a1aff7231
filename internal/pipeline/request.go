package pipeline

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

// Operation names a pipeline operation.
type Operation string

const (
	OpCompress   Operation = "compress"
	OpMerge      Operation = "merge"
	OpSplitRange Operation = "split-range"
	OpSplitEach  Operation = "split-each"
	OpExtract    Operation = "extract"
	OpWatermark  Operation = "watermark"
	OpProtect    Operation = "protect"
	OpUnprotect  Operation = "unprotect"
)

// Request describes any operation. Only the fields the operation uses are read.
//
// Compress, Watermark, Protect and Unprotect write a single input to Output when Output is set,
// and otherwise run as a batch writing suffixed names into OutputDir.
type Request struct {
	Operation Operation
	Inputs    []string
	Output    string
	OutputDir string

	Compression   models.CompressionSettings
	CompressAfter bool
	Range         models.PageRange
	Pages         string
	Watermark     models.WatermarkSettings
	Protection    models.ProtectionSettings
	Password      string
}

// Run dispatches req to its operation.
func (p *Pipeline) Run(ctx context.Context, req Request, report progress.Func) models.Result {
	logCtx := p.logger.With("operation", req.Operation)
	single := len(req.Inputs) == 1 && req.Output != ""

	first := ""
	if len(req.Inputs) > 0 {
		first = req.Inputs[0]
	}
	needOne := func() error {
		if len(req.Inputs) != 1 {
			return fmt.Errorf("%w: %s takes exactly one input, got %d", models.ErrInvalidSettings, req.Operation, len(req.Inputs))
		}
		return nil
	}

	switch req.Operation {
	case OpCompress:
		if single {
			return p.Compress(ctx, first, req.Output, req.Compression, report)
		}
		return p.CompressMany(ctx, req.Inputs, req.OutputDir, req.Compression, report)
	case OpWatermark:
		if single {
			return p.Watermark(ctx, first, req.Output, req.Watermark, report)
		}
		return p.WatermarkMany(ctx, req.Inputs, req.OutputDir, req.Watermark, report)
	case OpProtect:
		if single {
			return p.Protect(ctx, first, req.Output, req.Protection, report)
		}
		return p.ProtectMany(ctx, req.Inputs, req.OutputDir, req.Protection, report)
	case OpUnprotect:
		if single {
			return p.Unprotect(ctx, first, req.Output, req.Password, report)
		}
		return p.UnprotectMany(ctx, req.Inputs, req.OutputDir, req.Password, report)
	case OpMerge:
		return p.Merge(ctx, req.Inputs, req.Output, MergeOptions{CompressAfter: req.CompressAfter, Compression: req.Compression}, report)
	case OpSplitRange:
		if err := needOne(); err != nil {
			return p.fail(logCtx, err, models.Metrics{})
		}
		return p.SplitRange(ctx, first, req.Output, req.Range, report)
	case OpSplitEach:
		if err := needOne(); err != nil {
			return p.fail(logCtx, err, models.Metrics{})
		}
		return p.SplitEach(ctx, first, req.OutputDir, report)
	case OpExtract:
		if err := needOne(); err != nil {
			return p.fail(logCtx, err, models.Metrics{})
		}
		return p.Extract(ctx, first, req.Output, req.Pages, report)
	}
	return p.fail(logCtx, fmt.Errorf("%w: unknown operation %q", models.ErrInvalidSettings, req.Operation), models.Metrics{})
}
