package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// NewFirestoreClient creates a Firestore client for projectID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// Jobs stores compression job records in one collection.
type Jobs struct {
	collection *firestore.CollectionRef
}

// NewJobs returns the job store for collection.
func NewJobs(client *firestore.Client, collection string) *Jobs {
	return &Jobs{collection: client.Collection(collection)}
}

// FindByHash returns the ID of a job for the same file contents, or "" when there is none.
func (j *Jobs) FindByHash(ctx context.Context, fileHash string) (string, error) {
	docs, err := j.collection.Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, nil
	}
	return "", nil
}

// Create adds job and returns its reference.
func (j *Jobs) Create(ctx context.Context, job models.Job) (*firestore.DocumentRef, error) {
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	ref, _, err := j.collection.Add(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}
	return ref, nil
}

// SetStatus moves the job to status, recording errDetails when it is not empty.
func (j *Jobs) SetStatus(ctx context.Context, ref *firestore.DocumentRef, status models.JobStatus, errDetails string, extra ...firestore.Update) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: time.Now()},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	updates = append(updates, extra...)
	if _, err := ref.Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job status to %s: %w", status, err)
	}
	return nil
}
