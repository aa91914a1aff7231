// Package watermark computes where a text or image mark goes on each page and draws it.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"seehuhn.de/go/geom/matrix"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

const (
	// Margin is the distance of corner anchors from the page edges.
	Margin = 50.0
	// ImageBox is the size of the square an image mark is fitted into.
	ImageBox = 200.0
)

// Anchor returns the point a mark is placed at on a width by height page.
func Anchor(pos models.Position, width, height float64) (x, y float64) {
	switch pos {
	case models.TopLeft:
		return Margin, height - Margin
	case models.TopRight:
		return width - Margin, height - Margin
	case models.BottomLeft:
		return Margin, Margin
	case models.BottomRight:
		return width - Margin, Margin
	default:
		return width / 2, height / 2
	}
}

// Transform rotates by degrees counterclockwise about the origin and then moves the origin
// to (ax, ay).
func Transform(degrees, ax, ay float64) matrix.Matrix {
	theta := degrees * math.Pi / 180
	c, s := math.Cos(theta), math.Sin(theta)
	return matrix.Matrix{c, s, -s, c, ax, ay}
}

// FitImage scales a width by height image uniformly so its larger side is ImageBox.
func FitImage(width, height float64) (scale, w, h float64) {
	scale = math.Min(ImageBox/width, ImageBox/height)
	return scale, width * scale, height * scale
}

// Stamper draws watermarks through a codec.
type Stamper struct {
	codec  pdf.Codec
	logger *slog.Logger
}

// NewStamper returns a Stamper. A nil logger uses slog.Default.
func NewStamper(codec pdf.Codec, logger *slog.Logger) *Stamper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stamper{codec: codec, logger: logger}
}

// File watermarks every page of src and saves the result to dst. It returns the number of
// pages marked.
func (s *Stamper) File(ctx context.Context, src, dst string, ws models.WatermarkSettings, report progress.Func) (int, error) {
	doc, err := s.codec.Open(src, "")
	if err != nil {
		return 0, err
	}
	defer doc.Close()

	n, err := s.Document(ctx, doc, ws, report)
	if err != nil {
		return n, err
	}
	if err := doc.Save(dst); err != nil {
		return n, fmt.Errorf("failed to save watermarked document: %w", err)
	}
	return n, nil
}

// Document draws the mark described by ws on every page of doc. A missing image file leaves
// the pages unmarked. Pages that cannot be measured or drawn on are skipped.
func (s *Stamper) Document(ctx context.Context, doc pdf.Document, ws models.WatermarkSettings, report progress.Func) (int, error) {
	if report == nil {
		report = progress.Nop
	}
	logCtx := s.logger.With("kind", ws.Kind, "position", ws.Position)
	proto, ok, err := s.prototype(ws)
	if err != nil {
		return 0, err
	}
	if !ok {
		logCtx.Warn("Watermark image not found, pages left unmarked.", "image", ws.ImagePath)
	}

	n := doc.PageCount()
	marked := 0
	report(0)
	for page := 1; page <= n; page++ {
		if err := models.CheckCancelled(ctx); err != nil {
			return marked, err
		}
		if ok {
			if err := draw(doc, page, proto, ws); err != nil {
				logCtx.Debug("Skipping page.", "page", page, "error", err)
			} else {
				marked++
			}
		}
		report(progress.Percent(page, n))
	}
	return marked, nil
}

func draw(doc pdf.Document, page int, proto pdf.Mark, ws models.WatermarkSettings) error {
	w, h, err := doc.PageSize(page)
	if err != nil {
		return err
	}
	ax, ay := Anchor(ws.Position, w, h)
	m := proto
	m.Matrix = Transform(ws.Angle, ax, ay)
	return doc.Draw(page, m)
}

// prototype builds the page-independent part of the mark. ok is false when the image file
// does not exist.
func (s *Stamper) prototype(ws models.WatermarkSettings) (mark pdf.Mark, ok bool, err error) {
	mark.Opacity = math.Max(0, math.Min(1, ws.Opacity))
	switch ws.Kind {
	case models.WatermarkImage:
		f, err := os.Open(ws.ImagePath)
		if errors.Is(err, fs.ErrNotExist) {
			return mark, false, nil
		}
		if err != nil {
			return mark, false, fmt.Errorf("failed to open watermark image: %w", err)
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return mark, false, fmt.Errorf("%w: watermark image %s: %v", models.ErrInvalidSettings, ws.ImagePath, err)
		}
		if cfg.Width == 0 || cfg.Height == 0 {
			return mark, false, fmt.Errorf("%w: watermark image %s is empty", models.ErrInvalidSettings, ws.ImagePath)
		}
		scale, w, h := FitImage(float64(cfg.Width), float64(cfg.Height))
		mark.Kind = pdf.MarkImage
		mark.ImagePath = ws.ImagePath
		mark.Scale, mark.Width, mark.Height = scale, w, h
		mark.X, mark.Y = -w/2, -h/2
	case models.WatermarkText, "":
		if ws.Text == "" {
			return mark, false, fmt.Errorf("%w: watermark text is empty", models.ErrInvalidSettings)
		}
		mark.Kind = pdf.MarkText
		mark.Text = ws.Text
		mark.FontSize = ws.FontSize
		if mark.FontSize <= 0 {
			mark.FontSize = models.DefaultWatermarkSettings().FontSize
		}
	default:
		return mark, false, fmt.Errorf("%w: unknown watermark kind %q", models.ErrInvalidSettings, ws.Kind)
	}
	return mark, true, nil
}
