// Package queue declares the external QueueBackend contract (spec §4.1) the
// core depends on. A concrete implementation lives in
// internal/infrastructure/queue; tests use an in-memory fake.
package queue

import (
	"context"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// EnqueueOptions configures one enqueue call.
type EnqueueOptions struct {
	Priority               int
	DelayUntil             time.Time // zero value means "ready now"
	Attempts               int
	RemoveOnCompleteAge    time.Duration
	RemoveOnCompleteCount  int
	RemoveOnFailAge        time.Duration
	RemoveOnFailCount      int
}

// DefaultEnqueueOptions mirrors the QueueRegistry defaults in spec §4.2.
func DefaultEnqueueOptions() EnqueueOptions {
	return EnqueueOptions{
		Attempts:              5,
		RemoveOnCompleteAge:   24 * time.Hour,
		RemoveOnCompleteCount: 1000,
		RemoveOnFailAge:       7 * 24 * time.Hour,
		RemoveOnFailCount:     3000,
	}
}

// BatchItem is one item of an EnqueueBatch call.
type BatchItem struct {
	JobID   string
	Payload []byte
	Opts    EnqueueOptions
}

// Lease is the exclusive claim on one job returned by Claim.
type Lease struct {
	JobID        string
	WorkerToken  string
	Payload      []byte
	Attempt      int
	LockDuration time.Duration
}

// Backend is the durable queue contract from spec §4.1. Implementations must
// provide FIFO-within-priority ordering, atomic per-item batch enqueue, and
// the stalled-detection policy described there (lease not renewed within
// LockDuration → stalled; after maxStalledCount detections → terminal
// failure; otherwise requeued with exponential backoff, base 5s cap 30s, up
// to 5 attempts unless overridden).
type Backend interface {
	Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts EnqueueOptions) error
	EnqueueBatch(ctx context.Context, queueName string, items []BatchItem) error

	GetJob(ctx context.Context, queueName, jobID string) (*JobRecord, error)
	ListByState(ctx context.Context, queueName string, states []valueobject.JobState) ([]*JobRecord, error)
	ListByParent(ctx context.Context, queueName, parentID string) ([]*JobRecord, error)

	// The Mark* / AppendLog methods are the write side of the authoritative
	// job-state projection (spec §6 "queue backend stores the authoritative
	// job state"). WorkerPool calls these at each lifecycle step; asynq
	// itself only sees opaque task bytes and retains none of this.
	MarkActive(ctx context.Context, queueName, jobID string, processedAt time.Time) error
	UpdateProgress(ctx context.Context, queueName, jobID string, progress int) error
	MarkCompleted(ctx context.Context, queueName, jobID string, result []byte) error
	MarkFailed(ctx context.Context, queueName, jobID string, errMsg string) error
	MarkStalled(ctx context.Context, queueName, jobID string) error
	AppendLog(ctx context.Context, queueName, jobID string, line JobLogLine) error

	// Close releases backend resources (connections, background goroutines).
	Close() error
}

// JobRecord is the backend-owned projection of a job's state, used to serve
// GetJob/ListByState/ListByParent without the backend having to understand
// job-type-specific payloads.
type JobRecord struct {
	ID          string
	TenantID    string
	ParentID    string
	State       valueobject.JobState
	Progress    int
	Attempts    int
	MaxAttempts int
	Result      []byte // job-type-specific success object, JSON-encoded
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	FinishedAt  *time.Time
	Logs        []JobLogLine
}

// JobLogLine is one persisted log line of a JobRecord.
type JobLogLine struct {
	Timestamp time.Time
	Level     string
	Message   string
	Source    string
}
