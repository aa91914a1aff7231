package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"seehuhn.de/go/geom/matrix"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// PDFCPU implements Codec on top of github.com/pdfcpu/pdfcpu.
//
// Opened documents are held as a *model.Context. Documents created with New collect
// appended page ranges as trimmed files and are merged on Save. Watermarks and encryption
// are applied as file passes during Save.
type PDFCPU struct {
	relaxed bool
	tempDir string
}

// PDFCPUOption configures a PDFCPU codec.
type PDFCPUOption func(*PDFCPU)

// WithRelaxedValidation tolerates common PDF syntax errors when reading.
func WithRelaxedValidation(relaxed bool) PDFCPUOption {
	return func(c *PDFCPU) { c.relaxed = relaxed }
}

// WithTempDir sets where per-document scratch directories are created.
func WithTempDir(dir string) PDFCPUOption {
	return func(c *PDFCPU) { c.tempDir = dir }
}

// NewPDFCPU returns a pdfcpu-backed Codec.
func NewPDFCPU(opts ...PDFCPUOption) *PDFCPU {
	c := &PDFCPU{relaxed: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PDFCPU) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if c.relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

// Open implements Codec.
func (c *PDFCPU) Open(path, password string) (Document, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, models.ErrInputNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	work, err := os.MkdirTemp(c.tempDir, "pdfcpu-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	src := path
	if password != "" {
		conf := c.conf()
		conf.UserPW = password
		conf.OwnerPW = password
		decrypted := filepath.Join(work, "decrypted.pdf")
		switch err := api.DecryptFile(path, decrypted, conf); {
		case err == nil:
			src = decrypted
		case strings.Contains(strings.ToLower(err.Error()), "not encrypted"):
		default:
			os.RemoveAll(work)
			return nil, classify(path, err)
		}
	}

	ctx, err := c.read(src)
	if err != nil {
		os.RemoveAll(work)
		return nil, classify(path, err)
	}
	return &pdfcpuDoc{codec: c, work: work, path: src, ctx: ctx}, nil
}

// New implements Codec.
func (c *PDFCPU) New() (Document, error) {
	work, err := os.MkdirTemp(c.tempDir, "pdfcpu-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &pdfcpuDoc{codec: c, work: work}, nil
}

func (c *PDFCPU) read(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, c.conf())
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	// Populates ctx.Optimize, which page image extraction reads from.
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

const watermarkFont = "Helvetica"

type pdfcpuDoc struct {
	codec *PDFCPU
	work  string
	seq   int

	// path is the backing file of ctx; empty for documents built with New.
	path string
	ctx  *model.Context

	parts []string
	pages int

	images map[int][]byte
	marks  map[int]*model.Watermark
	enc    *model.Configuration
}

func (d *pdfcpuDoc) temp(name string) string {
	d.seq++
	return filepath.Join(d.work, fmt.Sprintf("%s-%d.pdf", name, d.seq))
}

func (d *pdfcpuDoc) PageCount() int {
	if d.ctx != nil {
		return d.ctx.PageCount
	}
	return d.pages
}

func (d *pdfcpuDoc) PageSize(page int) (float64, float64, error) {
	if err := d.load(); err != nil {
		return 0, 0, err
	}
	dims, err := d.ctx.PageDims()
	if err != nil {
		return 0, 0, err
	}
	if page < 1 || page > len(dims) {
		return 0, 0, fmt.Errorf("page %d out of range", page)
	}
	return dims[page-1].Width, dims[page-1].Height, nil
}

func (d *pdfcpuDoc) AppendPages(src Document, start, end int) error {
	s, ok := src.(*pdfcpuDoc)
	if !ok {
		return fmt.Errorf("pdfcpu: cannot append pages from %T", src)
	}
	if d.ctx != nil {
		return errors.New("pdfcpu: pages can only be appended to documents created with New")
	}
	from, err := s.file()
	if err != nil {
		return err
	}
	part := d.temp("part")
	pages := []string{fmt.Sprintf("%d-%d", start, end)}
	if err := api.TrimFile(from, part, pages, d.codec.conf()); err != nil {
		return fmt.Errorf("failed to copy pages %d-%d: %w", start, end, err)
	}
	d.parts = append(d.parts, part)
	d.pages += end - start + 1
	return nil
}

func (d *pdfcpuDoc) Images(page int) ([]ImageRef, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	mm, err := pdfcpu.ExtractPageImages(d.ctx, page, false)
	if err != nil {
		return nil, err
	}
	d.images = make(map[int][]byte, len(mm))
	refs := make([]ImageRef, 0, len(mm))
	for objNr, img := range mm {
		sd := d.stream(objNr)
		if sd == nil || img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			continue
		}
		d.images[objNr] = data
		refs = append(refs, ImageRef{Page: page, ID: objNr, Name: img.Name, Size: len(sd.Raw)})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (d *pdfcpuDoc) ImageBytes(ref ImageRef) ([]byte, error) {
	data, ok := d.images[ref.ID]
	if !ok {
		return nil, fmt.Errorf("image %d not loaded for page %d", ref.ID, ref.Page)
	}
	return data, nil
}

func (d *pdfcpuDoc) ReplaceImage(ref ImageRef, data []byte) error {
	if err := d.load(); err != nil {
		return err
	}
	entry, ok := d.ctx.Table[ref.ID]
	if !ok || entry == nil {
		return fmt.Errorf("image object %d not found", ref.ID)
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return fmt.Errorf("object %d is not a stream", ref.ID)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if format != "jpeg" {
		return fmt.Errorf("replacement for image %d is %s, not jpeg", ref.ID, format)
	}
	cs := types.Name("DeviceRGB")
	if cfg.ColorModel == color.GrayModel {
		cs = types.Name("DeviceGray")
	}

	delete(sd.Dict, "DecodeParms")
	delete(sd.Dict, "Decode")
	sd.Dict["Filter"] = types.Name("DCTDecode")
	sd.Dict["Width"] = types.Integer(cfg.Width)
	sd.Dict["Height"] = types.Integer(cfg.Height)
	sd.Dict["BitsPerComponent"] = types.Integer(8)
	sd.Dict["ColorSpace"] = cs
	sd.Dict["Length"] = types.Integer(len(data))
	sd.FilterPipeline = []types.PDFFilter{{Name: "DCTDecode"}}
	sd.Raw = data
	sd.Content = nil
	n := int64(len(data))
	sd.StreamLength = &n
	entry.Object = sd
	delete(d.images, ref.ID)
	return nil
}

func (d *pdfcpuDoc) StripMetadata(page int) error {
	if err := d.load(); err != nil {
		return err
	}
	if page == 0 {
		delete(d.ctx.RootDict, "Metadata")
		d.ctx.Info = nil
		return nil
	}
	pd, _, _, err := d.ctx.PageDict(page, false)
	if err != nil {
		return err
	}
	delete(pd, "Metadata")
	return nil
}

func (d *pdfcpuDoc) RemoveAnnotations(page int) error {
	if err := d.load(); err != nil {
		return err
	}
	pd, _, _, err := d.ctx.PageDict(page, false)
	if err != nil {
		return err
	}
	delete(pd, "Annots")
	return nil
}

// Draw queues a watermark for the page. pdfcpu positions a watermark by the offset of its
// bounding box, so the offset is solved from where the mark's box should land on the page.
func (d *pdfcpuDoc) Draw(page int, m Mark) error {
	if d.marks == nil {
		d.marks = make(map[int]*model.Watermark)
	}
	if _, ok := d.marks[page]; ok {
		return fmt.Errorf("page %d already has a pending mark", page)
	}
	// pdfcpu parses the angle at two decimals; its ±90 check depends on the rounded value.
	deg := math.Round(math.Atan2(m.Matrix[1], m.Matrix[0])*180/math.Pi*100) / 100
	lx, ly, w, h := markBox(m)
	x, y := watermarkOffset(m.Matrix, deg, lx, ly, w, h)

	var (
		wm  *model.Watermark
		err error
	)
	switch m.Kind {
	case MarkText:
		desc := fmt.Sprintf("fontname:%s, pos:bl, off:%.2f %.2f, rot:%.2f, op:%.2f, points:%d, scale:1 abs",
			watermarkFont, x, y, deg, m.Opacity, m.FontSize)
		wm, err = api.TextWatermark(m.Text, desc, true, false, types.POINTS)
	case MarkImage:
		desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, rot:%.2f, op:%.2f, scale:%.4f abs",
			x, y, deg, m.Opacity, m.Scale)
		wm, err = api.ImageWatermark(m.ImagePath, desc, true, false, types.POINTS)
	default:
		return fmt.Errorf("unknown mark kind %d", m.Kind)
	}
	if err != nil {
		return err
	}
	d.marks[page] = wm
	return nil
}

// markBox returns the box pdfcpu builds for m before rotation: its lower-left corner in the
// mark's local space and its size.
func markBox(m Mark) (x, y, w, h float64) {
	if m.Kind == MarkText {
		// One line of text, with the baseline a descent above the box bottom.
		descent := math.Ceil(font.Descent(watermarkFont, m.FontSize))
		return m.X, m.Y - descent, font.TextWidth(m.Text, watermarkFont, m.FontSize), font.LineHeight(watermarkFont, m.FontSize)
	}
	return m.X, m.Y, m.Width, m.Height
}

// watermarkOffset returns the bottom-left offset that makes pdfcpu draw a w by h box whose
// lower-left corner sits at (lx, ly) in the space mx maps onto the page. pdfcpu rotates the
// box about its center, except at exactly 90 and -90 degrees where the rotated box's
// lower-left extent sits at the offset.
func watermarkOffset(mx matrix.Matrix, deg, lx, ly, w, h float64) (float64, float64) {
	if deg == 90 || deg == -90 {
		minX, minY := math.Inf(1), math.Inf(1)
		for _, c := range [4][2]float64{{lx, ly}, {lx + w, ly}, {lx, ly + h}, {lx + w, ly + h}} {
			px, py := mx.Apply(c[0], c[1])
			minX, minY = math.Min(minX, px), math.Min(minY, py)
		}
		return minX, minY
	}
	cx, cy := mx.Apply(lx+w/2, ly+h/2)
	return cx - w/2, cy - h/2
}

// Decrypt implements Document. A document opened with a password was decrypted on Open;
// one opened without a password can only be read, not have its encryption removed.
func (d *pdfcpuDoc) Decrypt() error {
	if err := d.load(); err != nil {
		return err
	}
	if d.ctx.Encrypt != nil {
		return fmt.Errorf("%s: %w: a password is required to remove encryption", d.path, models.ErrBadPassword)
	}
	return nil
}

func (d *pdfcpuDoc) Encrypt(userPassword, ownerPassword string, permissions uint32) error {
	conf := model.NewAESConfiguration(userPassword, ownerPassword, 256)
	if d.codec.relaxed {
		conf.ValidationMode = model.ValidationRelaxed
	}
	conf.Permissions = model.PermissionFlags(permissions)
	d.enc = conf
	return nil
}

func (d *pdfcpuDoc) Save(path string) error {
	cur, err := d.flatten()
	if err != nil {
		return err
	}
	if len(d.marks) > 0 {
		next := d.temp("marked")
		if err := api.AddWatermarksMapFile(cur, next, d.marks, d.codec.conf()); err != nil {
			return fmt.Errorf("failed to apply watermarks: %w", err)
		}
		cur = next
	}
	if d.enc != nil {
		if err := api.EncryptFile(cur, path, d.enc); err != nil {
			return fmt.Errorf("failed to encrypt: %w", err)
		}
		return nil
	}
	return copyFile(cur, path)
}

func (d *pdfcpuDoc) Close() error {
	d.ctx = nil
	d.images = nil
	return os.RemoveAll(d.work)
}

// load materializes appended parts into a context so the document can be inspected and
// edited.
func (d *pdfcpuDoc) load() error {
	if d.ctx != nil {
		return nil
	}
	p, err := d.flatten()
	if err != nil {
		return err
	}
	ctx, err := d.codec.read(p)
	if err != nil {
		return err
	}
	d.ctx, d.path, d.parts = ctx, p, nil
	return nil
}

// file returns a path holding the document's current pages.
func (d *pdfcpuDoc) file() (string, error) {
	if d.ctx == nil {
		return d.flatten()
	}
	return d.path, nil
}

func (d *pdfcpuDoc) flatten() (string, error) {
	if d.ctx != nil {
		out := d.temp("doc")
		if err := api.WriteContextFile(d.ctx, out); err != nil {
			return "", fmt.Errorf("failed to write document: %w", err)
		}
		return out, nil
	}
	switch len(d.parts) {
	case 0:
		return "", models.ErrEmptyOutput
	case 1:
		return d.parts[0], nil
	}
	out := d.temp("merged")
	if err := api.MergeCreateFile(d.parts, out, false, d.codec.conf()); err != nil {
		return "", fmt.Errorf("failed to merge pages: %w", err)
	}
	return out, nil
}

func (d *pdfcpuDoc) stream(objNr int) *types.StreamDict {
	entry, ok := d.ctx.Table[objNr]
	if !ok || entry == nil {
		return nil
	}
	switch sd := entry.Object.(type) {
	case types.StreamDict:
		return &sd
	case *types.StreamDict:
		return sd
	}
	return nil
}

func classify(path string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%s: %w: %v", path, models.ErrBadPassword, err)
	}
	return fmt.Errorf("failed to read %s: %w", path, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
