// Package pdftest provides a pdf.Codec that stores documents as JSON, for exercising the
// transformation engines without real PDF files.
package pdftest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
)

// File is the on-disk form of a test document.
type File struct {
	Pages           []Page            `json:"pages"`
	Info            map[string]string `json:"info,omitempty"`
	CatalogMetadata bool              `json:"catalogMetadata,omitempty"`

	Encrypted     bool   `json:"encrypted,omitempty"`
	UserPassword  string `json:"userPassword,omitempty"`
	OwnerPassword string `json:"ownerPassword,omitempty"`
	Permissions   uint32 `json:"permissions,omitempty"`
}

// Page is one page of a test document. ID identifies the page across copies.
type Page struct {
	ID          string     `json:"id"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
	Metadata    bool       `json:"metadata,omitempty"`
	Annotations int        `json:"annotations,omitempty"`
	Images      []Image    `json:"images,omitempty"`
	Marks       []pdf.Mark `json:"marks,omitempty"`
}

// Image is an embedded raster image. Broken images fail to load. Images with the same
// non-zero Object are one image object referenced from several places.
type Image struct {
	Name   string `json:"name"`
	Data   []byte `json:"data"`
	Broken bool   `json:"broken,omitempty"`
	Object int    `json:"object,omitempty"`
}

// id is the image's document-wide identity. Unshared images get negative IDs so they never
// collide with an Object number.
func (img Image) id(page, i int) int {
	if img.Object > 0 {
		return img.Object
	}
	return -(page*1000 + i + 1)
}

// Letter returns a document of n US Letter pages with IDs "<prefix>-1" to "<prefix>-n".
func Letter(prefix string, n int) File {
	f := File{Pages: make([]Page, n)}
	for i := range f.Pages {
		f.Pages[i] = Page{ID: fmt.Sprintf("%s-%d", prefix, i+1), Width: 612, Height: 792}
	}
	return f
}

// Write stores f at path.
func Write(path string, f File) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads the test document at path.
func Read(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(data, &f)
	return f, err
}

// PageIDs returns the page IDs of the document at path, in order.
func PageIDs(path string) ([]string, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(f.Pages))
	for i, p := range f.Pages {
		ids[i] = p.ID
	}
	return ids, nil
}

// Codec implements pdf.Codec over JSON files and counts open handles.
type Codec struct {
	// BeforeOpen, when set, runs before every Open and can fail it.
	BeforeOpen func(path string) error
	// BeforeSave, when set, runs before every Save and can fail it.
	BeforeSave func(path string) error

	mu     sync.Mutex
	open   int
	peak   int
	opened int
}

// NewCodec returns an empty Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Peak is the largest number of documents open at the same time.
func (c *Codec) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// Handles is the number of documents not yet closed.
func (c *Codec) Handles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Opened is the number of successful Open calls.
func (c *Codec) Opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Codec) acquire(opened bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open++
	if opened {
		c.opened++
	}
	if c.open > c.peak {
		c.peak = c.open
	}
}

func (c *Codec) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open--
}

// Open implements pdf.Codec. Encrypted documents are decrypted in memory when password
// matches either password. Without a password, a document with no user password opens but
// stays encrypted.
func (c *Codec) Open(path, password string) (pdf.Document, error) {
	if c.BeforeOpen != nil {
		if err := c.BeforeOpen(path); err != nil {
			return nil, err
		}
	}
	f, err := Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, models.ErrInputNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if f.Encrypted {
		switch {
		case password == "" && f.UserPassword != "":
			return nil, fmt.Errorf("%s: %w", path, models.ErrBadPassword)
		case password != "" && password != f.UserPassword && password != f.OwnerPassword:
			return nil, fmt.Errorf("%s: %w", path, models.ErrBadPassword)
		case password != "":
			f.Encrypted, f.UserPassword, f.OwnerPassword, f.Permissions = false, "", "", 0
		}
	}
	c.acquire(true)
	return &Document{codec: c, file: f}, nil
}

// New implements pdf.Codec.
func (c *Codec) New() (pdf.Document, error) {
	c.acquire(false)
	return &Document{codec: c}, nil
}

// Document implements pdf.Document.
type Document struct {
	codec  *Codec
	file   File
	closed bool
}

func (d *Document) page(n int) (*Page, error) {
	if n < 1 || n > len(d.file.Pages) {
		return nil, fmt.Errorf("page %d out of range [1,%d]", n, len(d.file.Pages))
	}
	return &d.file.Pages[n-1], nil
}

func (d *Document) PageCount() int { return len(d.file.Pages) }

func (d *Document) PageSize(page int) (float64, float64, error) {
	p, err := d.page(page)
	if err != nil {
		return 0, 0, err
	}
	return p.Width, p.Height, nil
}

func (d *Document) AppendPages(src pdf.Document, start, end int) error {
	s, ok := src.(*Document)
	if !ok {
		return fmt.Errorf("cannot append pages from %T", src)
	}
	if s.closed {
		return errors.New("source document is closed")
	}
	if start < 1 || end > len(s.file.Pages) || start > end {
		return fmt.Errorf("pages %d-%d out of range [1,%d]", start, end, len(s.file.Pages))
	}
	for _, p := range s.file.Pages[start-1 : end] {
		p.Images = append([]Image(nil), p.Images...)
		p.Marks = append([]pdf.Mark(nil), p.Marks...)
		d.file.Pages = append(d.file.Pages, p)
	}
	return nil
}

func (d *Document) Images(page int) ([]pdf.ImageRef, error) {
	p, err := d.page(page)
	if err != nil {
		return nil, err
	}
	refs := make([]pdf.ImageRef, len(p.Images))
	for i, img := range p.Images {
		refs[i] = pdf.ImageRef{Page: page, ID: img.id(page, i), Name: img.Name, Size: len(img.Data)}
	}
	return refs, nil
}

func (d *Document) image(ref pdf.ImageRef) (*Image, error) {
	p, err := d.page(ref.Page)
	if err != nil {
		return nil, err
	}
	for i := range p.Images {
		if p.Images[i].id(ref.Page, i) == ref.ID {
			return &p.Images[i], nil
		}
	}
	return nil, fmt.Errorf("image %d not found on page %d", ref.ID, ref.Page)
}

func (d *Document) ImageBytes(ref pdf.ImageRef) ([]byte, error) {
	img, err := d.image(ref)
	if err != nil {
		return nil, err
	}
	if img.Broken {
		return nil, fmt.Errorf("image %s cannot be loaded", img.Name)
	}
	return img.Data, nil
}

func (d *Document) ReplaceImage(ref pdf.ImageRef, data []byte) error {
	img, err := d.image(ref)
	if err != nil {
		return err
	}
	if img.Object == 0 {
		img.Data = data
		return nil
	}
	for i := range d.file.Pages {
		for j := range d.file.Pages[i].Images {
			if shared := &d.file.Pages[i].Images[j]; shared.Object == img.Object {
				shared.Data = data
			}
		}
	}
	return nil
}

func (d *Document) StripMetadata(page int) error {
	if page == 0 {
		d.file.Info = nil
		d.file.CatalogMetadata = false
		return nil
	}
	p, err := d.page(page)
	if err != nil {
		return err
	}
	p.Metadata = false
	return nil
}

func (d *Document) RemoveAnnotations(page int) error {
	p, err := d.page(page)
	if err != nil {
		return err
	}
	p.Annotations = 0
	return nil
}

func (d *Document) Draw(page int, mark pdf.Mark) error {
	p, err := d.page(page)
	if err != nil {
		return err
	}
	p.Marks = append(p.Marks, mark)
	return nil
}

func (d *Document) Decrypt() error {
	if d.file.Encrypted {
		return fmt.Errorf("a password is required to remove encryption: %w", models.ErrBadPassword)
	}
	return nil
}

func (d *Document) Encrypt(userPassword, ownerPassword string, permissions uint32) error {
	d.file.Encrypted = true
	d.file.UserPassword = userPassword
	d.file.OwnerPassword = ownerPassword
	d.file.Permissions = permissions
	return nil
}

func (d *Document) Save(path string) error {
	if d.closed {
		return errors.New("document is closed")
	}
	if d.codec.BeforeSave != nil {
		if err := d.codec.BeforeSave(path); err != nil {
			return err
		}
	}
	return Write(path, d.file)
}

func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.codec.release()
	return nil
}
