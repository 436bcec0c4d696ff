// Package queueregistry implements QueueRegistry (spec §4.2): lazy
// (tenant, jobType) -> queue name resolution, default job options, and
// enqueue-time wrapping of a job-type-specific payload into a
// domain/queue.Envelope. Grounded on the teacher's worker.Queue* constant
// table and per-task-type default-option shape in
// internal/domain/worker/tasks.go.
package queueregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
)

// WorkerStarter is the narrow surface Registry needs from workerpool.Pool:
// bring a queue's bounded-concurrency consumer up the first time something
// is enqueued onto it (spec §4.3 "A pool creates a worker when its queue is
// created"). Kept as an interface so Registry never imports workerpool
// (which itself depends on the Dispatcher this registry is constructed
// before).
type WorkerStarter interface {
	StartQueue(queueName string, concurrency int) error
}

// Registry resolves (tenant, jobType) to a queue name, lazily starts that
// queue's worker pool on first use, and drives Backend enqueue calls with
// the spec's default job options.
type Registry struct {
	backend     queue.Backend
	bus         *eventbus.Bus
	workers     WorkerStarter
	concurrency int

	mu      sync.Mutex
	started map[string]struct{}
}

// New returns a Registry backed by backend, publishing job:added to bus,
// and starting workers's per-queue pool at concurrency the first time each
// (tenant, jobType) queue is enqueued onto (spec §4.3 default concurrency 3,
// or 5 once a tenant's live connection bootstraps it — callers pass
// whichever default applies).
func New(backend queue.Backend, bus *eventbus.Bus, workers WorkerStarter, concurrency int) *Registry {
	return &Registry{backend: backend, bus: bus, workers: workers, concurrency: concurrency, started: make(map[string]struct{})}
}

// ensureQueue starts queueName's worker pool on first sight; StartQueue
// itself is a no-op for a queue already running (spec §4.3), so this is
// just a fast-path cache to skip the interface call on the hot path.
func (r *Registry) ensureQueue(queueName string) error {
	r.mu.Lock()
	_, ok := r.started[queueName]
	r.mu.Unlock()
	if ok {
		return nil
	}
	if err := r.workers.StartQueue(queueName, r.concurrency); err != nil {
		return fmt.Errorf("queueregistry: start queue %s: %w", queueName, err)
	}
	r.mu.Lock()
	r.started[queueName] = struct{}{}
	r.mu.Unlock()
	return nil
}

// QueueName returns the logical queue name for (tenantID, jobType). Queue
// names are deterministic and require no registration step — "lazy" in the
// sense that WorkerPool only starts consuming a queue the first time a job
// is enqueued onto it.
func QueueName(tenantID string, jobType valueobject.JobType) string {
	return fmt.Sprintf("%s:%s", tenantID, jobType)
}

// Enqueue wraps payload in an Envelope and enqueues it onto
// (tenantID, jobType)'s queue, returning the generated job id.
func (r *Registry) Enqueue(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string, payload any) (string, error) {
	if !jobType.Valid() {
		return "", fmt.Errorf("queueregistry: unknown job type %q", jobType)
	}

	jobID := uuid.NewString()
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queueregistry: marshal payload: %w", err)
	}

	opts := queue.DefaultEnqueueOptions()
	env := queue.Envelope{
		JobID:       jobID,
		TenantID:    tenantID,
		JobType:     jobType,
		ParentID:    parentID,
		MaxAttempts: opts.Attempts,
		Payload:     raw,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("queueregistry: marshal envelope: %w", err)
	}

	queueName := QueueName(tenantID, jobType)
	if err := r.ensureQueue(queueName); err != nil {
		return "", err
	}
	if err := r.backend.Enqueue(ctx, queueName, jobID, envBytes, opts); err != nil {
		return "", err
	}

	r.bus.Publish(eventbus.Event{Name: eventbus.JobAdded, TenantID: tenantID, JobID: jobID, ParentID: parentID})
	return jobID, nil
}

// EnqueueBatch enqueues one item per payload, all sharing parentID as their
// group key, returning the generated job ids in order.
func (r *Registry) EnqueueBatch(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string, payloads []any) ([]string, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("queueregistry: unknown job type %q", jobType)
	}
	opts := queue.DefaultEnqueueOptions()
	queueName := QueueName(tenantID, jobType)
	if err := r.ensureQueue(queueName); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(payloads))
	items := make([]queue.BatchItem, 0, len(payloads))
	for _, payload := range payloads {
		jobID := uuid.NewString()
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("queueregistry: marshal payload: %w", err)
		}
		env := queue.Envelope{JobID: jobID, TenantID: tenantID, JobType: jobType, ParentID: parentID, MaxAttempts: opts.Attempts, Payload: raw}
		envBytes, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("queueregistry: marshal envelope: %w", err)
		}
		ids = append(ids, jobID)
		items = append(items, queue.BatchItem{JobID: jobID, Payload: envBytes, Opts: opts})
	}

	if err := r.backend.EnqueueBatch(ctx, queueName, items); err != nil {
		return nil, err
	}

	for _, id := range ids {
		r.bus.Publish(eventbus.Event{Name: eventbus.JobAdded, TenantID: tenantID, JobID: id, ParentID: parentID})
	}
	return ids, nil
}

// GetJob returns the backend-projected state of one job.
func (r *Registry) GetJob(ctx context.Context, tenantID string, jobType valueobject.JobType, jobID string) (*queue.JobRecord, error) {
	return r.backend.GetJob(ctx, QueueName(tenantID, jobType), jobID)
}

// ListByParent returns every job sharing parentID within (tenantID, jobType).
func (r *Registry) ListByParent(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string) ([]*queue.JobRecord, error) {
	return r.backend.ListByParent(ctx, QueueName(tenantID, jobType), parentID)
}
