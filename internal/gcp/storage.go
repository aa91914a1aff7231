package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// ErrInvalidURI is returned for object URIs that are not of the form gs://bucket/object.
var ErrInvalidURI = errors.New("invalid gs:// URI")

// ParseURI splits gs://bucket/object. The object part may be empty for a bucket-level URI.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// Download streams gs://bucket/object into destPath.
func Download(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for %s: %w", URI(bucket, object), err)
	}
	defer r.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return f.Close()
}

// ListPDFs returns the names of the .pdf objects under prefix, sorted lexically.
func ListPDFs(ctx context.Context, client *storage.Client, bucket, prefix string) ([]string, error) {
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", URI(bucket, prefix), err)
		}
		if strings.EqualFold(path.Ext(attrs.Name), ".pdf") {
			names = append(names, attrs.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Upload writes localPath to object, retrying with exponential backoff. With ifAbsent set an
// object that already exists is left alone and the upload counts as done.
func Upload(ctx context.Context, bucket *storage.BucketHandle, localPath, object string, ifAbsent bool) error {
	logCtx := slog.With("gcsBucket", bucket.BucketName(), "gcsObject", object)
	return Retry(ctx, logCtx, 4, time.Second, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return Permanent(fmt.Errorf("could not open local file %s: %w", localPath, err))
		}
		defer f.Close()

		writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		defer cancel()

		obj := bucket.Object(object)
		if ifAbsent {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		}
		w := obj.NewWriter(writeCtx)
		w.ContentType = "application/pdf"
		if _, err := io.Copy(w, f); err != nil {
			_ = w.Close()
			return fmt.Errorf("io.Copy to GCS failed: %w", err)
		}
		if err := w.Close(); err != nil {
			if AlreadyExists(err) {
				logCtx.Info("Object already exists, skipping upload.")
				return nil
			}
			return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
		}
		return nil
	})
}

// AlreadyExists reports whether err is a failed DoesNotExist precondition.
func AlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return permanentError{err} }

// Retry calls fn up to attempts times, doubling backoff after each failure. It stops early on
// success, on a Permanent error, or when ctx is done.
func Retry(ctx context.Context, logCtx *slog.Logger, attempts int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		logCtx.Warn("Attempt failed, will retry.",
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logCtx.Error("Context cancelled during backoff. Aborting retries.", "error", ctx.Err())
			return ctx.Err()
		}
	}
	logCtx.Error("Failed after all retries.", "error", lastErr)
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
