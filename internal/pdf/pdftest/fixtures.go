package pdftest

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// NoisePNG writes a w by h PNG of random opaque pixels to path. Equal seeds give equal
// images. Noise does not compress, so the image stays large inside a PDF.
func NoisePNG(path string, w, h int, seed int64) error {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePDF writes a real PDF to path with one page per size, each page showing a noise
// image of that size. Page i uses seed i+1, so image width identifies a page after it has
// been copied around.
func WritePDF(path string, sizes ...image.Point) error {
	dir, err := os.MkdirTemp(filepath.Dir(path), "images-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	files := make([]string, len(sizes))
	for i, sz := range sizes {
		files[i] = filepath.Join(dir, fmt.Sprintf("page-%d.png", i+1))
		if err := NoisePNG(files[i], sz.X, sz.Y, int64(i+1)); err != nil {
			return err
		}
	}
	return api.ImportImagesFile(files, path, pdfcpu.DefaultImportConfig(), nil)
}
