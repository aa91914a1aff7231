// Package pdf defines the narrow document capability the transformation engines consume,
// and a pdfcpu-backed implementation of it.
package pdf

import (
	"seehuhn.de/go/geom/matrix"
)

// Codec opens and creates documents.
type Codec interface {
	// Open reads the document at path. A non-empty password decrypts it; a password that
	// does not match yields an error wrapping models.ErrBadPassword.
	Open(path, password string) (Document, error)
	// New returns an empty document that pages can be appended to.
	New() (Document, error)
}

// Document is a handle owned by the operation that opened it. It must be closed before its
// backing file is replaced or removed.
type Document interface {
	PageCount() int
	// PageSize returns the width and height of a 1-based page in user space units.
	PageSize(page int) (width, height float64, err error)
	// AppendPages copies pages [start,end] of src, in order, to the end of the document.
	AppendPages(src Document, start, end int) error

	// Images lists the raster image resources of a page.
	Images(page int) ([]ImageRef, error)
	// ImageBytes returns an encoded form of the image that image.Decode understands.
	ImageBytes(ref ImageRef) ([]byte, error)
	// ReplaceImage swaps the stored image for JPEG data.
	ReplaceImage(ref ImageRef, jpeg []byte) error

	// StripMetadata removes a page's metadata stream, or the document-level info and
	// catalog metadata when page is 0.
	StripMetadata(page int) error
	RemoveAnnotations(page int) error

	// Draw places mark on a page.
	Draw(page int, mark Mark) error
	// Encrypt sets standard encryption for the next Save. An empty user password lets the
	// document open without a password.
	Encrypt(userPassword, ownerPassword string, permissions uint32) error
	// Decrypt drops encryption for the next Save. It fails with models.ErrBadPassword when
	// the document is still encrypted because it was opened without a password.
	Decrypt() error

	// Save writes the document to path.
	Save(path string) error
	Close() error
}

// ImageRef identifies an image resource within a document.
type ImageRef struct {
	Page int
	// ID identifies the image object across the whole document; an image shared by several
	// pages has the same ID on each. Its value is codec specific.
	ID   int
	Name string
	// Size is the stored (encoded) byte length of the image in the document.
	Size int
}

// MarkKind distinguishes text and image marks.
type MarkKind int

const (
	MarkText MarkKind = iota
	MarkImage
)

// Mark is content drawn at page coordinates. Matrix maps the mark's local space onto the
// page; content is placed at (X, Y) in local space.
type Mark struct {
	Kind    MarkKind
	Matrix  matrix.Matrix
	X, Y    float64
	Opacity float64

	Text     string
	FontSize int

	// ImagePath is drawn at Scale times its natural size, Width by Height units.
	ImagePath     string
	Scale         float64
	Width, Height float64
}
