package watermark

import (
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"seehuhn.de/go/geom/matrix"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/pdf/pdftest"
)

func TestAnchor(t *testing.T) {
	tests := []struct {
		pos  models.Position
		x, y float64
	}{
		{models.Center, 306, 396},
		{models.TopLeft, 50, 742},
		{models.TopRight, 562, 742},
		{models.BottomLeft, 50, 50},
		{models.BottomRight, 562, 50},
	}
	for _, tt := range tests {
		x, y := Anchor(tt.pos, 612, 792)
		if x != tt.x || y != tt.y {
			t.Errorf("Anchor(%s) = (%g, %g), want (%g, %g)", tt.pos, x, y, tt.x, tt.y)
		}
	}
}

func TestTransform(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-9)
	tests := []struct {
		degrees float64
		want    matrix.Matrix
	}{
		{0, matrix.Matrix{1, 0, 0, 1, 10, 20}},
		{90, matrix.Matrix{0, 1, -1, 0, 10, 20}},
		{45, matrix.Matrix{math.Sqrt2 / 2, math.Sqrt2 / 2, -math.Sqrt2 / 2, math.Sqrt2 / 2, 10, 20}},
	}
	for _, tt := range tests {
		got := Transform(tt.degrees, 10, 20)
		if diff := cmp.Diff(tt.want, got, approx); diff != "" {
			t.Errorf("Transform(%g) mismatch (-want +got):\n%s", tt.degrees, diff)
		}
	}
}

func TestFitImage(t *testing.T) {
	scale, w, h := FitImage(400, 100)
	if scale != 0.5 || w != 200 || h != 50 {
		t.Errorf("FitImage(400, 100) = (%g, %g, %g), want (0.5, 200, 50)", scale, w, h)
	}
	scale, w, h = FitImage(50, 100)
	if scale != 2 || w != 100 || h != 200 {
		t.Errorf("FitImage(50, 100) = (%g, %g, %g), want (2, 100, 200)", scale, w, h)
	}
}

func stamp(t *testing.T, ws models.WatermarkSettings) (pdftest.File, int, error) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "in.pdf")
	dst := filepath.Join(dir, "out.pdf")
	f := pdftest.Letter("p", 2)
	f.Pages[1].Width, f.Pages[1].Height = 792, 612
	if err := pdftest.Write(src, f); err != nil {
		t.Fatal(err)
	}
	n, err := NewStamper(pdftest.NewCodec(), nil).File(context.Background(), src, dst, ws, nil)
	if err != nil {
		return pdftest.File{}, n, err
	}
	out, err := pdftest.Read(dst)
	if err != nil {
		t.Fatal(err)
	}
	return out, n, nil
}

func TestStampText(t *testing.T) {
	ws := models.DefaultWatermarkSettings()
	ws.Angle = 0
	ws.Position = models.BottomRight

	out, n, err := stamp(t, ws)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d pages, want 2", n)
	}
	want := []pdf.Mark{
		{Kind: pdf.MarkText, Matrix: matrix.Matrix{1, 0, 0, 1, 562, 50}, Opacity: 0.3, Text: "CONFIDENTIAL", FontSize: 48},
		{Kind: pdf.MarkText, Matrix: matrix.Matrix{1, 0, 0, 1, 742, 50}, Opacity: 0.3, Text: "CONFIDENTIAL", FontSize: 48},
	}
	for i, p := range out.Pages {
		if diff := cmp.Diff(want[i:i+1], p.Marks); diff != "" {
			t.Errorf("page %d marks mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestStampImage(t *testing.T) {
	img := filepath.Join(t.TempDir(), "logo.png")
	f, err := os.Create(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 400, 100))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ws := models.WatermarkSettings{Kind: models.WatermarkImage, ImagePath: img, Opacity: 1.5, Position: models.Center}
	out, n, err := stamp(t, ws)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d pages, want 2", n)
	}
	got := out.Pages[0].Marks
	want := []pdf.Mark{{
		Kind:      pdf.MarkImage,
		Matrix:    matrix.Matrix{1, 0, 0, 1, 306, 396},
		X:         -100,
		Y:         -25,
		Opacity:   1,
		ImagePath: img,
		Scale:     0.5,
		Width:     200,
		Height:    50,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("marks mismatch (-want +got):\n%s", diff)
	}
}

func TestStampMissingImageIsNoop(t *testing.T) {
	ws := models.WatermarkSettings{Kind: models.WatermarkImage, ImagePath: filepath.Join(t.TempDir(), "nope.png"), Opacity: 0.5}
	out, n, err := stamp(t, ws)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if n != 0 {
		t.Errorf("marked %d pages, want 0", n)
	}
	for _, p := range out.Pages {
		if len(p.Marks) != 0 {
			t.Errorf("page %s has marks %v", p.ID, p.Marks)
		}
	}
}

func TestStampEmptyTextFails(t *testing.T) {
	ws := models.DefaultWatermarkSettings()
	ws.Text = ""
	if _, _, err := stamp(t, ws); !errors.Is(err, models.ErrInvalidSettings) {
		t.Errorf("File() error = %v, want ErrInvalidSettings", err)
	}
}
