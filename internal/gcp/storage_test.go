package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/a/b.pdf", "bucket", "a/b.pdf", false},
		{"gs://bucket/", "bucket", "", false},
		{"gs://bucket", "bucket", "", false},
		{"gs:///x.pdf", "", "", true},
		{"s3://bucket/x.pdf", "", "", true},
		{"bucket/x.pdf", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURI) {
					t.Errorf("ParseURI(%q) err = %v, want ErrInvalidURI", tt.uri, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) unexpected error: %v", tt.uri, err)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI(%q) = %q, %q; want %q, %q", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	uri := URI("docs", "2024/report.pdf")
	if uri != "gs://docs/2024/report.pdf" {
		t.Fatalf("URI = %q", uri)
	}
	bucket, object, err := ParseURI(uri)
	if err != nil || bucket != "docs" || object != "2024/report.pdf" {
		t.Errorf("ParseURI(%q) = %q, %q, %v", uri, bucket, object, err)
	}
}

func TestAlreadyExists(t *testing.T) {
	precondition := &googleapi.Error{Code: 412}
	if !AlreadyExists(precondition) {
		t.Error("412 should report already exists")
	}
	if !AlreadyExists(fmt.Errorf("close: %w", precondition)) {
		t.Error("wrapped 412 should report already exists")
	}
	if AlreadyExists(&googleapi.Error{Code: 404}) {
		t.Error("404 should not report already exists")
	}
	if AlreadyExists(errors.New("boom")) {
		t.Error("plain error should not report already exists")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), discardLogger(), 4, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Retry(context.Background(), discardLogger(), 3, time.Millisecond, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("err = %v, want wrapped transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	fatal := errors.New("missing file")
	calls := 0
	err := Retry(context.Background(), discardLogger(), 4, time.Millisecond, func() error {
		calls++
		return Permanent(fatal)
	})
	if err != fatal {
		t.Errorf("err = %v, want the permanent error itself", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, discardLogger(), 4, time.Hour, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
