package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pdf"
	"github.com/Lllllllleong/pdftools/internal/pipeline"
)

// AutoCompressConfig is the environment of the storage-triggered compression function.
type AutoCompressConfig struct {
	ProjectID        string
	OutputBucket     string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
	Compression      models.CompressionSettings
}

// AutoCompressFunction compresses every PDF uploaded to a bucket into OutputBucket.
type AutoCompressFunction struct {
	storageClient    *storage.Client
	jobs             *gcp.Jobs
	executionsClient *executions.Client
	pipeline         *pipeline.Pipeline
	config           AutoCompressConfig
}

// GCSEvent is the payload of an object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// LoadAutoCompressConfig reads the function's environment. COMPRESSION_LEVEL overrides the
// pipeline's configured default level.
func LoadAutoCompressConfig(cfg config.Config) (AutoCompressConfig, error) {
	c := AutoCompressConfig{
		ProjectID:        config.GetEnv("PROJECT_ID", ""),
		OutputBucket:     config.GetEnv("OUTPUT_BUCKET", ""),
		CollectionName:   config.GetEnv("FIRESTORE_COLLECTION", "compression-jobs"),
		WorkflowLocation: config.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       config.GetEnv("WORKFLOW_ID", ""),
		Compression:      cfg.CompressionSettings(),
	}
	if c.ProjectID == "" {
		return c, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.OutputBucket == "" {
		return c, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}
	if v, ok := os.LookupEnv("COMPRESSION_LEVEL"); ok {
		level, err := models.ParseCompressionLevel(v)
		if err != nil {
			return c, fmt.Errorf("COMPRESSION_LEVEL: %w", err)
		}
		c.Compression.Level = level
	}
	return c, nil
}

// NewAutoCompress connects the storage, Firestore and workflow clients.
func NewAutoCompress(ctx context.Context, cfg config.Config, logger *slog.Logger) (*AutoCompressFunction, error) {
	c, err := LoadAutoCompressConfig(cfg)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, c.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	f := &AutoCompressFunction{
		storageClient: storageClient,
		jobs:          gcp.NewJobs(firestoreClient, c.CollectionName),
		pipeline:      pipeline.New(pdf.NewPDFCPU(pdf.WithRelaxedValidation(cfg.Codec.RelaxedValidation)), cfg, logger),
		config:        c,
	}
	if c.WorkflowID != "" {
		f.executionsClient, err = executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
	}
	slog.Info("Auto-compress logic initialized.", "outputBucket", c.OutputBucket, "level", c.Compression.Level, "workflowId", c.WorkflowID)
	return f, nil
}

// CompressedObjectName is the output object for an uploaded object name.
func CompressedObjectName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + pipeline.SuffixCompressed + ".pdf"
}

// Process compresses the object named by e. Non-PDF objects and contents seen before are
// skipped.
func (f *AutoCompressFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "pdf-auto-compress-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := gcp.Download(ctx, f.storageClient, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	existing, err := f.jobs.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if existing != "" {
		logCtx.Info("Duplicate file detected. Skipping.", "existingJobId", existing)
		return nil
	}

	jobRef, err := f.jobs.Create(ctx, models.Job{
		FileHash:         fileHash,
		OriginalFilename: path.Base(e.Name),
		SourceURI:        gcp.URI(e.Bucket, e.Name),
		Status:           models.JobProcessing,
		CompressionLevel: f.config.Compression.Level.String(),
	})
	if err != nil {
		logCtx.Error("Failed to create job record", "error", err)
		return err
	}
	logCtx = logCtx.With("jobId", jobRef.ID)
	logCtx.Info("Created job record in Firestore.")

	outputPath := filepath.Join(tempDir, "compressed.pdf")
	res := f.pipeline.Compress(ctx, sourcePath, outputPath, f.config.Compression, nil)
	if !res.Success {
		return f.handleError(ctx, logCtx, jobRef, "failed to compress PDF", res.Err)
	}

	outputObject := CompressedObjectName(e.Name)
	if err := gcp.Upload(ctx, f.storageClient.Bucket(f.config.OutputBucket), outputPath, outputObject, false); err != nil {
		return f.handleError(ctx, logCtx, jobRef, "failed to upload compressed PDF", err)
	}
	outputURI := gcp.URI(f.config.OutputBucket, outputObject)

	err = f.jobs.SetStatus(ctx, jobRef, models.JobCompressed, "",
		firestore.Update{Path: "outputUri", Value: outputURI},
		firestore.Update{Path: "originalBytes", Value: res.Metrics.OriginalBytes},
		firestore.Update{Path: "newBytes", Value: res.Metrics.NewBytes},
	)
	if err != nil {
		return f.handleError(ctx, logCtx, jobRef, "failed to update status to COMPRESSED", err)
	}
	logCtx.Info("PDF compressed.", "outputUri", outputURI,
		"originalBytes", res.Metrics.OriginalBytes, "newBytes", res.Metrics.NewBytes,
		"reduction", fmt.Sprintf("%.1f%%", res.Metrics.Reduction()))

	if f.executionsClient != nil {
		if err := f.triggerWorkflow(ctx, logCtx, jobRef, outputURI); err != nil {
			return err
		}
	}
	return nil
}

func (f *AutoCompressFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, jobRef *firestore.DocumentRef, outputURI string) error {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(map[string]any{
		"jobId":     jobRef.ID,
		"outputUri": outputURI,
	})
	if err != nil {
		return f.handleError(ctx, logCtx, jobRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, jobRef, "failed to trigger workflow execution", err)
	}
	if _, err := jobRef.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: exec.GetName()}}); err != nil {
		logCtx.Warn("Failed to record workflow execution ID.", "error", err)
	}
	return nil
}

func (f *AutoCompressFunction) handleError(ctx context.Context, logCtx *slog.Logger, jobRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr, "kind", models.KindOf(originalErr))
	if err := f.jobs.SetStatus(ctx, jobRef, models.JobFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
