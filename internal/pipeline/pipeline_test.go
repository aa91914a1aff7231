package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf/pdftest"
)

func newPipeline(codec *pdftest.Codec, batchSize int) *Pipeline {
	cfg := config.Default()
	if batchSize > 0 {
		cfg.Merge.BatchSize = batchSize
	}
	return New(codec, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeDocs(t *testing.T, dir string, counts ...int) []string {
	t.Helper()
	paths := make([]string, len(counts))
	for i, n := range counts {
		paths[i] = filepath.Join(dir, fmt.Sprintf("doc%02d.pdf", i+1))
		if err := pdftest.Write(paths[i], pdftest.Letter(fmt.Sprintf("d%d", i+1), n)); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

// listDir returns the sorted names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names
}

func baseNames(paths ...string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	sort.Strings(names)
	return names
}

type recorder struct {
	mu      sync.Mutex
	reports []int
}

func (r *recorder) report(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, p)
}

func (r *recorder) check(t *testing.T, wantLast int) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(r.reports); i++ {
		if r.reports[i] <= r.reports[i-1] {
			t.Fatalf("progress did not advance: %v", r.reports)
		}
	}
	if last := r.reports[len(r.reports)-1]; last != wantLast {
		t.Errorf("last progress = %d, want %d (%v)", last, wantLast, r.reports)
	}
}

func TestMergeSkipsMissingInputs(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 2, 3, 1)
	inputs := []string{paths[0], filepath.Join(dir, "missing.pdf"), paths[1], paths[2]}
	out := filepath.Join(dir, "merged.pdf")

	var rec recorder
	res := newPipeline(pdftest.NewCodec(), 0).Merge(context.Background(), inputs, out, MergeOptions{}, rec.report)
	if !res.Success {
		t.Fatalf("Merge() failed: %s", res.Error)
	}
	if diff := cmp.Diff([]string{out}, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	got, err := pdftest.PageIDs(out)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"d1-1", "d1-2", "d2-1", "d2-2", "d2-3", "d3-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("page order mismatch (-want +got):\n%s", diff)
	}
	if res.Metrics.OriginalBytes == 0 || res.Metrics.NewBytes == 0 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if diff := cmp.Diff(baseNames(append(paths, out)...), listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
	rec.check(t, 100)
}

func TestMergeInsufficientInputs(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 1)
	res := newPipeline(pdftest.NewCodec(), 0).Merge(context.Background(), append(paths, filepath.Join(dir, "x.pdf")), filepath.Join(dir, "m.pdf"), MergeOptions{}, nil)
	if res.Success || res.Kind != models.KindInsufficientInputs {
		t.Errorf("Merge() = %+v, want InsufficientInputs", res)
	}
}

func TestMergeBatchedMatchesFlat(t *testing.T) {
	dir := t.TempDir()
	counts := make([]int, 45)
	for i := range counts {
		counts[i] = 2
	}
	paths := writeDocs(t, dir, counts...)
	flat := filepath.Join(dir, "flat.pdf")
	batched := filepath.Join(dir, "batched.pdf")

	if res := newPipeline(pdftest.NewCodec(), 50).Merge(context.Background(), paths, flat, MergeOptions{}, nil); !res.Success {
		t.Fatalf("flat Merge() failed: %s", res.Error)
	}
	codec := pdftest.NewCodec()
	if res := newPipeline(codec, 20).Merge(context.Background(), paths, batched, MergeOptions{}, nil); !res.Success {
		t.Fatalf("batched Merge() failed: %s", res.Error)
	}
	want, _ := pdftest.PageIDs(flat)
	got, _ := pdftest.PageIDs(batched)
	if len(got) != 90 {
		t.Errorf("batched merge has %d pages, want 90", len(got))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("batched merge differs (-flat +batched):\n%s", diff)
	}
	if codec.Peak() > 2 {
		t.Errorf("Peak() = %d", codec.Peak())
	}
}

func TestMergeCancelledLeavesNoArtifact(t *testing.T) {
	dir := t.TempDir()
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = 1
	}
	paths := writeDocs(t, dir, counts...)
	out := filepath.Join(dir, "merged.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codec := pdftest.NewCodec()
	codec.BeforeOpen = func(string) error {
		if codec.Opened() == 22 {
			cancel()
		}
		return nil
	}

	res := newPipeline(codec, 20).Merge(ctx, paths, out, MergeOptions{}, nil)
	if res.Success || res.Kind != models.KindCancelled {
		t.Fatalf("Merge() = %+v, want Cancelled", res)
	}
	if !errors.Is(res.Err, models.ErrCancelled) {
		t.Errorf("Err = %v", res.Err)
	}
	if diff := cmp.Diff(baseNames(paths...), listDir(t, dir)); diff != "" {
		t.Errorf("artifacts left behind (-want +got):\n%s", diff)
	}
	if codec.Handles() != 0 {
		t.Errorf("%d documents left open", codec.Handles())
	}
}

func TestMergeCompressAfter(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 2, 2)
	out := filepath.Join(dir, "merged.pdf")

	var rec recorder
	opts := MergeOptions{CompressAfter: true, Compression: models.DefaultCompressionSettings()}
	res := newPipeline(pdftest.NewCodec(), 0).Merge(context.Background(), paths, out, opts, rec.report)
	if !res.Success {
		t.Fatalf("Merge() failed: %s", res.Error)
	}
	rec.check(t, 100)

	var sawMergeHalf bool
	for _, p := range rec.reports {
		if p == 50 {
			sawMergeHalf = true
		}
	}
	if !sawMergeHalf {
		t.Errorf("merge stage did not end at 50: %v", rec.reports)
	}
	if diff := cmp.Diff(baseNames(append(paths, out)...), listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCompressFailureKeepsMergedOutput(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 2, 3, 1)
	out := filepath.Join(dir, "merged.pdf")

	codec := pdftest.NewCodec()
	saves := 0
	codec.BeforeSave = func(string) error {
		saves++
		if saves == 2 {
			return errors.New("disk full")
		}
		return nil
	}
	opts := MergeOptions{CompressAfter: true, Compression: models.DefaultCompressionSettings()}
	res := newPipeline(codec, 0).Merge(context.Background(), paths, out, opts, nil)
	if res.Success || res.Kind != models.KindIOFailure {
		t.Fatalf("Merge() = %+v, want IOFailure", res)
	}
	if diff := cmp.Diff([]string{out}, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	got, err := pdftest.PageIDs(out)
	if err != nil {
		t.Fatalf("merged output missing: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("merged output has %d pages, want 6", len(got))
	}
	if diff := cmp.Diff(baseNames(append(paths, out)...), listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCancelledDuringCompression(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 2, 3)
	out := filepath.Join(dir, "merged.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codec := pdftest.NewCodec()
	codec.BeforeOpen = func(path string) error {
		if strings.HasSuffix(path, ".tmp") {
			cancel()
		}
		return nil
	}
	opts := MergeOptions{CompressAfter: true, Compression: models.DefaultCompressionSettings()}
	res := newPipeline(codec, 0).Merge(ctx, paths, out, opts, nil)
	if res.Kind != models.KindCancelled {
		t.Fatalf("Merge() = %+v, want Cancelled", res)
	}
	if diff := cmp.Diff(baseNames(paths...), listDir(t, dir)); diff != "" {
		t.Errorf("artifacts left behind (-want +got):\n%s", diff)
	}
}

func TestCompressManyPartialFailure(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 2, 1)
	inputs := []string{paths[0], filepath.Join(dir, "missing.pdf"), paths[1]}
	outDir := filepath.Join(dir, "out")

	var rec recorder
	res := newPipeline(pdftest.NewCodec(), 0).CompressMany(context.Background(), inputs, outDir, models.DefaultCompressionSettings(), rec.report)
	if !res.Success || res.Kind != models.KindPartialBatchFailure {
		t.Fatalf("CompressMany() = %+v, want partial success", res)
	}
	if !errors.Is(res.Err, models.ErrPartialBatchFailure) {
		t.Errorf("Err = %v", res.Err)
	}
	type entry struct {
		Success bool
		Kind    models.ErrorKind
		Output  string
	}
	var got []entry
	for _, f := range res.Files {
		got = append(got, entry{f.Success, f.Kind, filepath.Base(f.Output)})
	}
	want := []entry{
		{true, models.KindNone, "doc01_compressed.pdf"},
		{false, models.KindInputNotFound, "."},
		{true, models.KindNone, "doc02_compressed.pdf"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"doc01_compressed.pdf", "doc02_compressed.pdf"}, listDir(t, outDir)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if res.Metrics.OriginalBytes != res.Files[0].Metrics.OriginalBytes+res.Files[2].Metrics.OriginalBytes {
		t.Errorf("aggregate metrics %+v do not add up", res.Metrics)
	}
	rec.check(t, 100)
}

func TestCompressManyAllFail(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")}
	res := newPipeline(pdftest.NewCodec(), 0).CompressMany(context.Background(), inputs, "", models.DefaultCompressionSettings(), nil)
	if res.Success || res.Kind != models.KindInputNotFound || len(res.Files) != 2 {
		t.Errorf("CompressMany() = %+v, want failure with a two file trail", res)
	}
}

func TestBatchStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 1, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codec := pdftest.NewCodec()
	codec.BeforeOpen = func(path string) error {
		if path == paths[1] {
			cancel()
		}
		return nil
	}
	res := newPipeline(codec, 0).WatermarkMany(ctx, paths, "", models.DefaultWatermarkSettings(), nil)
	if res.Kind != models.KindCancelled {
		t.Fatalf("WatermarkMany() = %+v, want Cancelled", res)
	}
	if len(res.Outputs) != 1 || filepath.Base(res.Outputs[0]) != "doc01_watermarked.pdf" {
		t.Errorf("outputs = %v", res.Outputs)
	}
	want := append(baseNames(paths...), "doc01_watermarked.pdf")
	sort.Strings(want)
	if diff := cmp.Diff(want, listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressInPlace(t *testing.T) {
	dir := t.TempDir()
	in := writeDocs(t, dir, 2)[0]
	before, _ := os.ReadFile(in)

	codec := pdftest.NewCodec()
	codec.BeforeSave = func(string) error { return errors.New("write failed") }
	res := newPipeline(codec, 0).Compress(context.Background(), in, in, models.DefaultCompressionSettings(), nil)
	if res.Success {
		t.Fatal("Compress() succeeded with a failing save")
	}
	after, _ := os.ReadFile(in)
	if string(before) != string(after) {
		t.Error("original changed after a failed in-place compression")
	}
	if diff := cmp.Diff([]string{"doc01.pdf"}, listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}

	codec.BeforeSave = nil
	res = newPipeline(codec, 0).Compress(context.Background(), in, in, models.DefaultCompressionSettings(), nil)
	if !res.Success {
		t.Fatalf("Compress() failed: %s", res.Error)
	}
	if diff := cmp.Diff([]string{"doc01.pdf"}, listDir(t, dir)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressDefaultOutputName(t *testing.T) {
	dir := t.TempDir()
	in := writeDocs(t, dir, 1)[0]
	res := newPipeline(pdftest.NewCodec(), 0).Compress(context.Background(), in, "", models.DefaultCompressionSettings(), nil)
	if !res.Success {
		t.Fatalf("Compress() failed: %s", res.Error)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "doc01_compressed.pdf")}, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitEachAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	in := writeDocs(t, dir, 4)[0]
	outDir := filepath.Join(dir, "pages")

	codec := pdftest.NewCodec()
	saves := 0
	codec.BeforeSave = func(string) error {
		saves++
		if saves == 3 {
			return errors.New("write failed")
		}
		return nil
	}
	p := newPipeline(codec, 0)
	if res := p.SplitEach(context.Background(), in, outDir, nil); res.Success {
		t.Fatal("SplitEach() succeeded with a failing save")
	}
	if names := listDir(t, outDir); len(names) != 0 {
		t.Errorf("partial outputs visible: %v", names)
	}

	codec.BeforeSave = nil
	var rec recorder
	res := p.SplitEach(context.Background(), in, outDir, rec.report)
	if !res.Success {
		t.Fatalf("SplitEach() failed: %s", res.Error)
	}
	want := []string{"doc01_page_1.pdf", "doc01_page_2.pdf", "doc01_page_3.pdf", "doc01_page_4.pdf"}
	if diff := cmp.Diff(want, listDir(t, outDir)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, baseNames(res.Outputs...)); diff != "" {
		t.Errorf("result outputs mismatch (-want +got):\n%s", diff)
	}
	rec.check(t, 100)
}

func TestRunSplitAndExtract(t *testing.T) {
	dir := t.TempDir()
	in := writeDocs(t, dir, 10)[0]
	p := newPipeline(pdftest.NewCodec(), 0)

	tests := []struct {
		name  string
		req   Request
		kind  models.ErrorKind
		pages []string
	}{
		{
			name:  "range clamps",
			req:   Request{Operation: OpSplitRange, Inputs: []string{in}, Output: filepath.Join(dir, "range.pdf"), Range: models.PageRange{Start: 0, End: 20}},
			pages: pdfIDs("d1", 1, 10),
		},
		{
			name: "range inverted",
			req:  Request{Operation: OpSplitRange, Inputs: []string{in}, Output: filepath.Join(dir, "inverted.pdf"), Range: models.PageRange{Start: 8, End: 3}},
			kind: models.KindInvalidRange,
		},
		{
			name:  "extract sorts",
			req:   Request{Operation: OpExtract, Inputs: []string{in}, Output: filepath.Join(dir, "extract.pdf"), Pages: "5,1,3-5"},
			pages: []string{"d1-1", "d1-3", "d1-4", "d1-5"},
		},
		{
			name: "extract nothing",
			req:  Request{Operation: OpExtract, Inputs: []string{in}, Output: filepath.Join(dir, "none.pdf"), Pages: "40-50,x"},
			kind: models.KindNoValidPages,
		},
		{
			name: "unknown operation",
			req:  Request{Operation: "rotate", Inputs: []string{in}},
			kind: models.KindInvalidSettings,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Run(context.Background(), tt.req, nil)
			if res.Kind != tt.kind {
				t.Fatalf("Run() kind = %q, want %q (%s)", res.Kind, tt.kind, res.Error)
			}
			if tt.kind != models.KindNone {
				if res.Success {
					t.Error("Run() reported success")
				}
				if tt.req.Output != "" {
					if _, err := os.Stat(tt.req.Output); !os.IsNotExist(err) {
						t.Errorf("output %s exists after failure", tt.req.Output)
					}
				}
				return
			}
			got, err := pdftest.PageIDs(tt.req.Output)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.pages, got); diff != "" {
				t.Errorf("pages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func pdfIDs(prefix string, from, to int) []string {
	var ids []string
	for i := from; i <= to; i++ {
		ids = append(ids, fmt.Sprintf("%s-%d", prefix, i))
	}
	return ids
}

func TestProtectAndUnprotect(t *testing.T) {
	dir := t.TempDir()
	in := writeDocs(t, dir, 1)[0]
	p := newPipeline(pdftest.NewCodec(), 0)

	s := models.ProtectionSettings{UserPassword: "pw", RequirePasswordToOpen: true}
	res := p.Protect(context.Background(), in, "", s, nil)
	if !res.Success {
		t.Fatalf("Protect() failed: %s", res.Error)
	}
	locked := filepath.Join(dir, "doc01_protected.pdf")
	if diff := cmp.Diff([]string{locked}, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}

	res = p.Unprotect(context.Background(), locked, "", "nope", nil)
	if res.Kind != models.KindBadPassword {
		t.Errorf("Unprotect() kind = %q, want BadPassword", res.Kind)
	}
	res = p.UnprotectMany(context.Background(), []string{locked}, "", "pw", nil)
	if !res.Success || len(res.Outputs) != 1 || filepath.Base(res.Outputs[0]) != "doc01_protected_unprotected.pdf" {
		t.Errorf("UnprotectMany() = %+v", res)
	}

	res = p.ProtectMany(context.Background(), []string{in}, "", models.ProtectionSettings{}, nil)
	if res.Kind != models.KindInvalidSettings {
		t.Errorf("ProtectMany() kind = %q, want InvalidSettings", res.Kind)
	}
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 3, 3)
	out := filepath.Join(dir, "merged.pdf")
	p := newPipeline(pdftest.NewCodec(), 0)

	task := p.Submit(context.Background(), Request{Operation: OpMerge, Inputs: paths, Output: out, CompressAfter: true})
	var reports []int
	for pct := range task.Progress() {
		reports = append(reports, pct)
	}
	<-task.Done()
	res := task.Wait()
	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if again := task.Wait(); again.Success != res.Success || again.Kind != res.Kind {
		t.Errorf("second Wait() = %+v, want %+v", again, res)
	}
	if len(reports) == 0 || reports[len(reports)-1] != 100 {
		t.Errorf("progress = %v, want to end at 100", reports)
	}
}

func TestTaskCancel(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, 1, 1, 1)
	out := filepath.Join(dir, "merged.pdf")

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	codec := pdftest.NewCodec()
	codec.BeforeOpen = func(string) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	task := newPipeline(codec, 0).Submit(context.Background(), Request{Operation: OpMerge, Inputs: paths, Output: out})
	<-started
	task.Cancel()
	close(release)

	res := task.Wait()
	if res.Kind != models.KindCancelled {
		t.Fatalf("Wait() = %+v, want Cancelled", res)
	}
	if diff := cmp.Diff(baseNames(paths...), listDir(t, dir)); diff != "" {
		t.Errorf("artifacts left behind (-want +got):\n%s", diff)
	}
}
