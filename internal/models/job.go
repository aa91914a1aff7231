package models

import "time"

// JobStatus is the lifecycle state of a compression job record.
type JobStatus string

const (
	JobProcessing JobStatus = "PROCESSING"
	JobCompressed JobStatus = "COMPRESSED"
	JobFailed     JobStatus = "FAILED"
)

// Job is the Firestore record of one automatically compressed upload.
type Job struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	SourceURI           string    `firestore:"sourceUri,omitempty"`
	Status              JobStatus `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	CompressionLevel    string    `firestore:"compressionLevel,omitempty"`
	OutputURI           string    `firestore:"outputUri,omitempty"`
	OriginalBytes       int64     `firestore:"originalBytes,omitempty"`
	NewBytes            int64     `firestore:"newBytes,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time `firestore:"updatedAt,omitempty"`
}
