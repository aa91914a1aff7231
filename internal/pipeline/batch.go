package pipeline

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

// batch runs op on each input in turn, writing to the input's suffixed name in dir. A failed
// file is recorded and the batch moves on. Cancellation stops the batch; outputs already
// committed stay in place and are listed in the result.
func (p *Pipeline) batch(ctx context.Context, op Operation, inputs []string, dir, suffix string, report progress.Func, run fileOp) models.Result {
	tr := progress.NewTracker(report)
	logCtx := p.logger.With("operation", op, "files", len(inputs))
	if len(inputs) == 0 {
		return p.fail(logCtx, fmt.Errorf("no input files: %w", models.ErrInputNotFound), models.Metrics{})
	}

	var (
		res       models.Result
		firstErr  error
		succeeded int
	)
	tr.Report(0)
	for i, in := range inputs {
		if err := models.CheckCancelled(ctx); err != nil {
			return cancelled(p.fail(logCtx, err, res.Metrics), res)
		}
		lo, hi := progress.Slot(i, len(inputs))
		out := OutputName(in, dir, suffix)
		m, err := run(ctx, in, out, tr.Stage(lo, hi))

		fr := models.FileResult{Input: in, Metrics: m}
		if err != nil {
			fr.Kind, fr.Error = models.KindOf(err), err.Error()
			res.Files = append(res.Files, fr)
			if fr.Kind == models.KindCancelled {
				return cancelled(p.fail(logCtx, err, res.Metrics), res)
			}
			logCtx.Warn("File failed, continuing with the next one.", "input", in, "kind", fr.Kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			fr.Success, fr.Output = true, out
			res.Files = append(res.Files, fr)
			res.Outputs = append(res.Outputs, out)
			res.Metrics.Add(m)
			succeeded++
		}
		tr.Report(hi)
	}

	switch {
	case succeeded == len(inputs):
		res.Success = true
	case succeeded > 0:
		err := fmt.Errorf("%d of %d files failed: %w", len(inputs)-succeeded, len(inputs), models.ErrPartialBatchFailure)
		res.Success, res.Kind, res.Err, res.Error = true, models.KindPartialBatchFailure, err, err.Error()
	default:
		failed := p.fail(logCtx, firstErr, res.Metrics)
		failed.Files = res.Files
		return failed
	}
	logCtx.Info("Batch completed.", "succeeded", succeeded, "failed", len(inputs)-succeeded,
		"originalBytes", res.Metrics.OriginalBytes, "newBytes", res.Metrics.NewBytes)
	return res
}

// cancelled carries the trail of a stopped batch over to its failed result.
func cancelled(failed, trail models.Result) models.Result {
	failed.Files = trail.Files
	failed.Outputs = trail.Outputs
	return failed
}
