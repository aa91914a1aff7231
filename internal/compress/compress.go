// Package compress recompresses the raster images of a document and strips optional
// metadata, keeping a re-encoded image only when it is smaller than the stored one.
package compress

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/progress"
)

// Stats counts what happened to the images of a document.
type Stats struct {
	Images   int
	Replaced int
	Kept     int
	Skipped  int
}

// Compressor runs the compression engine against a codec.
type Compressor struct {
	codec  pdf.Codec
	logger *slog.Logger
}

// NewCompressor returns a Compressor. A nil logger uses slog.Default.
func NewCompressor(codec pdf.Codec, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{codec: codec, logger: logger}
}

// File compresses the document at src and saves the result to dst.
func (c *Compressor) File(ctx context.Context, src, dst string, s models.CompressionSettings, report progress.Func) (Stats, error) {
	doc, err := c.codec.Open(src, "")
	if err != nil {
		return Stats{}, err
	}
	defer doc.Close()

	st, err := c.Document(ctx, doc, s, report)
	if err != nil {
		return st, err
	}
	if err := doc.Save(dst); err != nil {
		return st, fmt.Errorf("failed to save compressed document: %w", err)
	}
	return st, nil
}

// Document compresses doc in place, page by page. Cancellation is checked before each page.
// Failures on individual images and metadata are logged and skipped. An image object shared
// by several pages is handled once.
func (c *Compressor) Document(ctx context.Context, doc pdf.Document, s models.CompressionSettings, report progress.Func) (Stats, error) {
	if report == nil {
		report = progress.Nop
	}
	quality, scale := s.ImageQuality(), s.ScaleFactor()
	logCtx := c.logger.With("quality", quality, "scale", scale)

	var st Stats
	seen := make(map[int]bool)
	n := doc.PageCount()
	report(0)
	for page := 1; page <= n; page++ {
		if err := models.CheckCancelled(ctx); err != nil {
			return st, err
		}
		c.page(logCtx, doc, page, quality, scale, seen, &st)

		if s.RemoveMetadata {
			if err := doc.StripMetadata(page); err != nil {
				logCtx.Debug("Failed to strip page metadata.", "page", page, "error", err)
			}
		}
		if s.RemoveAnnotations {
			if err := doc.RemoveAnnotations(page); err != nil {
				logCtx.Debug("Failed to remove annotations.", "page", page, "error", err)
			}
		}
		report(progress.Percent(page, n))
	}
	if s.RemoveMetadata {
		if err := doc.StripMetadata(0); err != nil {
			logCtx.Debug("Failed to strip document metadata.", "error", err)
		}
	}
	logCtx.Debug("Compressed images.", "images", st.Images, "replaced", st.Replaced, "kept", st.Kept, "skipped", st.Skipped)
	return st, nil
}

func (c *Compressor) page(logCtx *slog.Logger, doc pdf.Document, page, quality int, scale float64, seen map[int]bool, st *Stats) {
	refs, err := doc.Images(page)
	if err != nil {
		logCtx.Debug("Failed to list page images.", "page", page, "error", err)
		return
	}
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		st.Images++
		data, err := doc.ImageBytes(ref)
		if err != nil {
			st.Skipped++
			logCtx.Debug("Skipping unreadable image.", "page", page, "image", ref.Name, "error", err)
			continue
		}
		out, err := Recompress(data, quality, scale)
		if err != nil {
			st.Skipped++
			logCtx.Debug("Skipping image that could not be re-encoded.", "page", page, "image", ref.Name, "error", err)
			continue
		}
		if !Smaller(out, ref.Size) {
			st.Kept++
			continue
		}
		if err := doc.ReplaceImage(ref, out); err != nil {
			st.Skipped++
			logCtx.Debug("Failed to replace image.", "page", page, "image", ref.Name, "error", err)
			continue
		}
		st.Replaced++
	}
}

// Smaller reports whether re-encoded bytes should replace an image stored in size bytes.
func Smaller(reencoded []byte, size int) bool {
	return len(reencoded) < size
}

// Recompress decodes an image, scales it by scale when scale < 1 and encodes it as JPEG at
// quality.
func Recompress(data []byte, quality int, scale float64) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if scale > 0 && scale < 1 {
		img = resize(img, scale)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func resize(img image.Image, scale float64) image.Image {
	b := img.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
