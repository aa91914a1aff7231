// Package split plans and writes documents made of a subset of a source's pages: a range,
// one document per page, or an explicit page list.
package split

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

// ClampRange limits r to [1,total]. It fails with ErrInvalidRange when nothing is left.
func ClampRange(r models.PageRange, total int) (models.PageRange, error) {
	r.Start = max(r.Start, 1)
	r.End = min(r.End, total)
	if r.Start > r.End {
		return r, fmt.Errorf("pages %d-%d of %d: %w", r.Start, r.End, total, models.ErrInvalidRange)
	}
	return r, nil
}

// ParsePageSet parses comma separated pages and a-b ranges, such as "1,3-5,5", into sorted,
// unique page numbers within [1,total]. Tokens that are not numbers or ranges are ignored.
func ParsePageSet(text string, total int) ([]int, error) {
	seen := make(map[int]bool)
	add := func(from, to int) {
		for p := max(from, 1); p <= min(to, total); p++ {
			seen[p] = true
		}
	}
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if a, b, ok := strings.Cut(tok, "-"); ok {
			from, err1 := strconv.Atoi(strings.TrimSpace(a))
			to, err2 := strconv.Atoi(strings.TrimSpace(b))
			if err1 == nil && err2 == nil {
				add(from, to)
			}
			continue
		}
		if p, err := strconv.Atoi(tok); err == nil {
			add(p, p)
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%q: %w", text, models.ErrNoValidPages)
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

// Runs groups sorted pages into consecutive ranges.
func Runs(pages []int) []models.PageRange {
	var runs []models.PageRange
	for _, p := range pages {
		if n := len(runs); n > 0 && runs[n-1].End == p-1 {
			runs[n-1].End = p
			continue
		}
		runs = append(runs, models.PageRange{Start: p, End: p})
	}
	return runs
}

// PageFileName names the single page output for page i of source.
func PageFileName(source string, i int) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return fmt.Sprintf("%s_page_%d.pdf", base, i)
}

// Planner writes split outputs through a codec.
type Planner struct {
	codec  pdf.Codec
	logger *slog.Logger
}

// NewPlanner returns a Planner. A nil logger uses slog.Default.
func NewPlanner(codec pdf.Codec, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{codec: codec, logger: logger}
}

// Range writes pages r of src, clamped to the document, to dst and returns the clamped range.
func (p *Planner) Range(ctx context.Context, src, dst string, r models.PageRange, report progress.Func) (models.PageRange, error) {
	if report == nil {
		report = progress.Nop
	}
	doc, err := p.codec.Open(src, "")
	if err != nil {
		return r, err
	}
	defer doc.Close()

	r, err = ClampRange(r, doc.PageCount())
	if err != nil {
		return r, err
	}
	report(0)
	if err := p.write(ctx, doc, dst, []models.PageRange{r}, r.Len(), report); err != nil {
		return r, err
	}
	return r, nil
}

// Extract writes the pages selected by text, in ascending order, to dst and returns them.
func (p *Planner) Extract(ctx context.Context, src, dst, text string, report progress.Func) ([]int, error) {
	if report == nil {
		report = progress.Nop
	}
	doc, err := p.codec.Open(src, "")
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	pages, err := ParsePageSet(text, doc.PageCount())
	if err != nil {
		return nil, err
	}
	report(0)
	if err := p.write(ctx, doc, dst, Runs(pages), len(pages), report); err != nil {
		return nil, err
	}
	return pages, nil
}

// Each writes every page of src to its own document. stage maps an output name to the path
// it is written to. The output names are returned in page order.
func (p *Planner) Each(ctx context.Context, src string, stage func(name string) string, report progress.Func) ([]string, error) {
	if report == nil {
		report = progress.Nop
	}
	doc, err := p.codec.Open(src, "")
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.PageCount()
	if n == 0 {
		return nil, models.ErrEmptyOutput
	}
	report(0)
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := models.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		name := PageFileName(src, i)
		if err := p.single(doc, i, stage(name)); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		names = append(names, name)
		report(progress.Percent(i, n))
	}
	p.logger.Debug("Split document into pages.", "input", src, "pages", n)
	return names, nil
}

func (p *Planner) single(doc pdf.Document, page int, dst string) error {
	out, err := p.codec.New()
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.AppendPages(doc, page, page); err != nil {
		return err
	}
	return out.Save(dst)
}

// write copies runs of doc into a new document saved at dst.
func (p *Planner) write(ctx context.Context, doc pdf.Document, dst string, runs []models.PageRange, total int, report progress.Func) error {
	out, err := p.codec.New()
	if err != nil {
		return err
	}
	defer out.Close()

	done := 0
	for _, r := range runs {
		if err := models.CheckCancelled(ctx); err != nil {
			return err
		}
		if err := out.AppendPages(doc, r.Start, r.End); err != nil {
			return fmt.Errorf("failed to copy pages %d-%d: %w", r.Start, r.End, err)
		}
		done += r.Len()
		report(progress.Percent(done, total))
	}
	if out.PageCount() == 0 {
		return models.ErrEmptyOutput
	}
	if err := out.Save(dst); err != nil {
		return fmt.Errorf("failed to save split document: %w", err)
	}
	return nil
}
