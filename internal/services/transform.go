package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/pipeline"
)

// TransformConfig is the environment of the HTTP transform function.
type TransformConfig struct {
	ProjectID    string
	OutputBucket string
}

// TransformFunction runs pipeline operations over objects in Cloud Storage.
type TransformFunction struct {
	storageClient *storage.Client
	pipeline      *pipeline.Pipeline
	defaults      config.Config
	config        TransformConfig
}

// NewTransform connects the storage client and builds the pipeline.
func NewTransform(ctx context.Context, cfg config.Config, logger *slog.Logger) (*TransformFunction, error) {
	c := TransformConfig{
		ProjectID:    config.GetEnv("PROJECT_ID", ""),
		OutputBucket: config.GetEnv("OUTPUT_BUCKET", ""),
	}
	if c.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.OutputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &TransformFunction{
		storageClient: storageClient,
		pipeline:      pipeline.New(pdf.NewPDFCPU(pdf.WithRelaxedValidation(cfg.Codec.RelaxedValidation)), cfg, logger),
		defaults:      cfg,
		config:        c,
	}, nil
}

// Process downloads the request's inputs, runs the operation and uploads its outputs. Operation
// failures are reported in the response; the error is reserved for storage failures.
func (f *TransformFunction) Process(ctx context.Context, req *models.TransformRequest) (*models.TransformResponse, error) {
	jobID := uuid.NewString()
	logCtx := slog.With("jobId", jobID, "operation", req.Operation)
	logCtx.Info("Starting transform.", "inputs", len(req.Inputs), "inputPrefix", req.InputPrefix)

	uris, err := f.resolveInputs(ctx, req)
	if err != nil {
		logCtx.Warn("Could not resolve inputs.", "error", err)
		return failedResponse(jobID, err), nil
	}

	tempDir, err := os.MkdirTemp("", "pdf-transform-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	inDir, outDir := filepath.Join(tempDir, "in"), filepath.Join(tempDir, "out")

	locals, err := LocalInputs(uris, inDir)
	if err != nil {
		return failedResponse(jobID, err), nil
	}
	preq, err := BuildRequest(req, locals, outDir, f.defaults)
	if err != nil {
		return failedResponse(jobID, err), nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := f.download(ctx, logCtx, uris, locals); err != nil {
		return nil, err
	}

	res := f.pipeline.Run(ctx, preq, nil)

	prefix := req.OutputPrefix
	if prefix == "" {
		prefix = jobID
	}
	uploaded, err := f.upload(ctx, logCtx, res.Outputs, prefix)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(locals)+len(uploaded))
	for i, l := range locals {
		names[l] = uris[i]
	}
	for l, u := range uploaded {
		names[l] = u
	}
	resp := ResponseFor(jobID, res, names)
	logCtx.Info("Transform complete.", "status", resp.Status, "kind", resp.Kind, "outputs", len(resp.Outputs))
	return resp, nil
}

// resolveInputs returns req.Inputs followed by the PDFs under req.InputPrefix.
func (f *TransformFunction) resolveInputs(ctx context.Context, req *models.TransformRequest) ([]string, error) {
	uris := append([]string(nil), req.Inputs...)
	if req.InputPrefix == "" {
		return uris, nil
	}
	bucket, prefix, err := gcp.ParseURI(req.InputPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSettings, err)
	}
	names, err := gcp.ListPDFs(ctx, f.storageClient, bucket, prefix)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		uris = append(uris, gcp.URI(bucket, n))
	}
	return uris, nil
}

// download fetches every input concurrently. Objects that do not exist are left absent so the
// pipeline reports or skips them like missing local files.
func (f *TransformFunction) download(ctx context.Context, logCtx *slog.Logger, uris, locals []string) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i := range uris {
		uri, local := uris[i], locals[i]
		eg.Go(func() error {
			bucket, object, err := gcp.ParseURI(uri)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
				return fmt.Errorf("failed to create input dir: %w", err)
			}
			err = gcp.Download(gctx, f.storageClient, bucket, object, local)
			if errors.Is(err, storage.ErrObjectNotExist) {
				logCtx.Warn("Input object does not exist.", "gcsUri", uri)
				return nil
			}
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to download inputs", "error", err)
		return fmt.Errorf("failed to download inputs: %w", err)
	}
	return nil
}

// upload stores outputs under prefix and maps each local path to its object URI.
func (f *TransformFunction) upload(ctx context.Context, logCtx *slog.Logger, outputs []string, prefix string) (map[string]string, error) {
	bucket := f.storageClient.Bucket(f.config.OutputBucket)
	objects := make([]string, len(outputs))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, local := range outputs {
		objects[i] = path.Join(prefix, filepath.Base(local))
		eg.Go(func() error {
			return gcp.Upload(gctx, bucket, local, objects[i], false)
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to upload outputs", "error", err)
		return nil, fmt.Errorf("failed to upload outputs: %w", err)
	}

	uploaded := make(map[string]string, len(outputs))
	for i, local := range outputs {
		uploaded[local] = gcp.URI(f.config.OutputBucket, objects[i])
	}
	return uploaded, nil
}

// LocalInputs assigns each input URI a download path under dir. Every input gets its own
// numbered directory so equal object names from different folders cannot collide.
func LocalInputs(uris []string, dir string) ([]string, error) {
	locals := make([]string, len(uris))
	for i, uri := range uris {
		_, object, err := gcp.ParseURI(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidSettings, err)
		}
		if object == "" || strings.HasSuffix(object, "/") {
			return nil, fmt.Errorf("%w: %q names no object", models.ErrInvalidSettings, uri)
		}
		locals[i] = filepath.Join(dir, fmt.Sprintf("%03d", i), path.Base(object))
	}
	return locals, nil
}

// BuildRequest translates req into a pipeline request over local inputs writing into outDir.
// Settings the request leaves out come from defaults.
func BuildRequest(req *models.TransformRequest, inputs []string, outDir string, defaults config.Config) (pipeline.Request, error) {
	op := pipeline.Operation(req.Operation)
	preq := pipeline.Request{
		Operation:     op,
		Inputs:        inputs,
		Compression:   defaults.CompressionSettings(),
		CompressAfter: req.CompressAfter,
		Range:         req.Range,
		Pages:         req.Pages,
		Watermark:     models.DefaultWatermarkSettings(),
		Protection:    req.Protection,
		Password:      req.Password,
	}
	if req.Compression != nil {
		preq.Compression = *req.Compression
	}
	if req.Watermark != nil {
		preq.Watermark = *req.Watermark
	}

	switch op {
	case pipeline.OpMerge, pipeline.OpSplitRange, pipeline.OpExtract:
		name := path.Base(req.Output)
		if req.Output == "" {
			name = string(op)
		}
		if !strings.EqualFold(path.Ext(name), ".pdf") {
			name += ".pdf"
		}
		preq.Output = filepath.Join(outDir, name)
	case pipeline.OpSplitEach:
		preq.OutputDir = outDir
	case pipeline.OpCompress, pipeline.OpWatermark, pipeline.OpProtect, pipeline.OpUnprotect:
		seen := make(map[string]bool, len(inputs))
		for _, in := range inputs {
			base := filepath.Base(in)
			if seen[base] {
				return preq, fmt.Errorf("%w: more than one input is named %s", models.ErrInvalidSettings, base)
			}
			seen[base] = true
		}
		preq.OutputDir = outDir
	default:
		return preq, fmt.Errorf("%w: unknown operation %q", models.ErrInvalidSettings, req.Operation)
	}
	return preq, nil
}

// ResponseFor converts res, replacing local paths with the URIs in names.
func ResponseFor(jobID string, res models.Result, names map[string]string) *models.TransformResponse {
	rename := func(p string) string {
		if u, ok := names[p]; ok {
			return u
		}
		return filepath.Base(p)
	}
	resp := &models.TransformResponse{
		JobID:   jobID,
		Status:  "success",
		Kind:    res.Kind,
		Error:   res.Error,
		Metrics: res.Metrics,
	}
	if !res.Success {
		resp.Status = "failed"
	}
	for _, o := range res.Outputs {
		resp.Outputs = append(resp.Outputs, rename(o))
	}
	for _, fr := range res.Files {
		fr.Input = rename(fr.Input)
		if fr.Output != "" {
			fr.Output = rename(fr.Output)
		}
		resp.Files = append(resp.Files, fr)
	}
	return resp
}

func failedResponse(jobID string, err error) *models.TransformResponse {
	return ResponseFor(jobID, models.Failed(err), nil)
}

// HTTPStatus is the response code for a finished transform.
func HTTPStatus(resp *models.TransformResponse) int {
	if resp.Status == "success" {
		return http.StatusOK
	}
	switch resp.Kind {
	case models.KindInputNotFound:
		return http.StatusNotFound
	case models.KindInsufficientInputs, models.KindInvalidRange, models.KindNoValidPages, models.KindInvalidSettings:
		return http.StatusBadRequest
	case models.KindBadPassword:
		return http.StatusForbidden
	case models.KindCancelled:
		return http.StatusServiceUnavailable
	case models.KindEmptyOutput:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
