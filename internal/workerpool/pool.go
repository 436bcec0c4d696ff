// Package workerpool implements WorkerPool (spec §4.3): one
// *asynq.Server + *asynq.ServeMux per logical queue, bounded to that queue's
// configured concurrency, driving the Dispatcher and the job lifecycle
// (claim -> active -> {completed, failed}) against the queue backend's
// authoritative projection. Directly generalizes
// internal/infrastructure/worker/{server,handlers}.go — one asynq.Server per
// process in the teacher becomes one per (tenant, jobType) queue here, so
// each tenant/job-type pair gets its own bounded concurrency instead of
// sharing a single global pool.
package workerpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
	"github.com/Pimboto/DarkStackBackend/internal/logsink"
)

// Dispatcher is the narrow surface WorkerPool needs from executor.Dispatcher,
// kept as an interface so tests can supply a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *entity.Job, log service.Logger) error
}

// PayloadDecoder turns an Envelope's raw payload bytes into the concrete,
// job-type-specific struct Dispatcher expects on entity.Job.Payload.
// Supplied by cmd/server wiring since only it knows every job-type-specific
// Go type.
type PayloadDecoder func(jobType string, raw json.RawMessage) (any, error)

// Pool owns one *asynq.Server per started queue.
type Pool struct {
	redisOpt   asynq.RedisClientOpt
	taskType   string
	backend    queue.Backend
	dispatcher Dispatcher
	decode     PayloadDecoder
	bus        *eventbus.Bus
	baseLog    service.Logger

	mu      sync.Mutex
	servers map[string]*asynq.Server
}

// New returns a Pool ready to start per-queue servers.
func New(redisOpt asynq.RedisClientOpt, taskType string, backend queue.Backend, dispatcher Dispatcher, decode PayloadDecoder, bus *eventbus.Bus, baseLog service.Logger) *Pool {
	return &Pool{
		redisOpt:   redisOpt,
		taskType:   taskType,
		backend:    backend,
		dispatcher: dispatcher,
		decode:     decode,
		bus:        bus,
		baseLog:    baseLog,
		servers:    make(map[string]*asynq.Server),
	}
}

// StartQueue starts (or is a no-op if already running) a bounded-concurrency
// asynq.Server consuming queueName with the given concurrency. The call
// blocks until the server's background goroutines are launched; it does not
// block for the server's lifetime.
func (p *Pool) StartQueue(queueName string, concurrency int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.servers[queueName]; ok {
		return nil
	}

	srv := asynq.NewServer(p.redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			delay := 5 * time.Second
			for i := 0; i < n && delay < 30*time.Second; i++ {
				delay *= 2
			}
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			p.baseLog.Error("workerpool: task failed", "queue", queueName, "error", err)
			if !isDeadlineExceeded(err) {
				return
			}
			var env queue.Envelope
			if decodeErr := json.Unmarshal(task.Payload(), &env); decodeErr != nil {
				p.baseLog.Error("workerpool: decode envelope for stall detection", "queue", queueName, "error", decodeErr)
				return
			}
			if markErr := p.backend.MarkStalled(ctx, queueName, env.JobID); markErr != nil {
				p.baseLog.Error("workerpool: mark stalled", "queue", queueName, "jobId", env.JobID, "error", markErr)
			}
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(p.taskType, func(ctx context.Context, task *asynq.Task) error {
		return p.handle(ctx, queueName, task)
	})

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("workerpool: start server for %s: %w", queueName, err)
	}
	p.servers[queueName] = srv
	return nil
}

// Shutdown stops every running queue server, waiting for in-flight workers
// up to each server's own shutdown timeout (spec §4.3 "Graceful shutdown").
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, srv := range p.servers {
		p.baseLog.Info("workerpool: shutting down queue", "queue", name)
		srv.Shutdown()
	}
	p.servers = make(map[string]*asynq.Server)
}

// handle implements the per-job lifecycle from spec §4.3 steps 1-6. Lease
// renewal (step 7) is left to asynq's own in-flight heartbeat/deadline
// extension.
func (p *Pool) handle(ctx context.Context, queueName string, task *asynq.Task) error {
	var env queue.Envelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		return fmt.Errorf("workerpool: decode envelope: %w", err)
	}

	payload, err := p.decode(string(env.JobType), env.Payload)
	if err != nil {
		_ = p.backend.MarkFailed(ctx, queueName, env.JobID, err.Error())
		return asynq.SkipRetry
	}

	job := &entity.Job{
		ID:          env.JobID,
		TenantID:    env.TenantID,
		JobType:     env.JobType,
		ParentID:    env.ParentID,
		MaxAttempts: env.MaxAttempts,
		Payload:     payload,
		State:       valueobject.JobStateWaiting,
	}

	now := time.Now()
	if err := p.backend.MarkActive(ctx, queueName, job.ID, now); err != nil {
		return fmt.Errorf("workerpool: mark active: %w", err)
	}
	if err := job.SetState(valueobject.JobStateActive); err != nil {
		return fmt.Errorf("workerpool: %w", err)
	}
	p.bus.Publish(eventbus.Event{Name: eventbus.JobStarted, TenantID: job.TenantID, JobID: job.ID, ParentID: job.ParentID})

	jobLogger, ring := logsink.New(p.bus, job.TenantID, job.ID, job.ParentID, logsink.DefaultCapacity)
	log := &persistentLogger{JobLogger: jobLogger, backend: p.backend, queueName: queueName, jobID: job.ID}
	capture := logsink.NewCaptureWriter(ring, p.bus, job.TenantID, job.ID, job.ParentID)
	ctx = logsink.WithCapture(ctx, capture)

	progressDone := make(chan struct{})
	go p.renewProgress(ctx, queueName, job, progressDone)
	defer close(progressDone)

	dispatchErr := p.dispatcher.Dispatch(ctx, job, log)
	if dispatchErr != nil {
		log.Error("job failed", "error", dispatchErr)
		if err := p.backend.MarkFailed(ctx, queueName, job.ID, dispatchErr.Error()); err != nil {
			p.baseLog.Error("workerpool: mark failed errored", "error", err)
		}
		if err := job.SetState(valueobject.JobStateFailed); err != nil {
			p.baseLog.Error("workerpool: illegal state transition", "error", err)
		}
		p.bus.Publish(eventbus.Event{Name: eventbus.JobFailed, TenantID: job.TenantID, JobID: job.ID, ParentID: job.ParentID, Payload: dispatchErr.Error()})

		if isTerminal(dispatchErr) {
			return asynq.SkipRetry
		}
		return dispatchErr
	}

	resultBytes, err := json.Marshal(job.Result)
	if err != nil {
		resultBytes = nil
	}
	if err := p.backend.MarkCompleted(ctx, queueName, job.ID, resultBytes); err != nil {
		p.baseLog.Error("workerpool: mark completed errored", "error", err)
	}
	if err := job.SetState(valueobject.JobStateCompleted); err != nil {
		p.baseLog.Error("workerpool: illegal state transition", "error", err)
	}
	p.bus.Publish(eventbus.Event{Name: eventbus.JobCompleted, TenantID: job.TenantID, JobID: job.ID, ParentID: job.ParentID, Payload: job.Result})
	return nil
}

// renewProgress periodically mirrors job.Progress into the backend's
// projection so GetJob reflects in-flight progress, not just terminal state.
func (p *Pool) renewProgress(ctx context.Context, queueName string, job *entity.Job, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = p.backend.UpdateProgress(ctx, queueName, job.ID, job.Progress)
			p.bus.Publish(eventbus.Event{Name: eventbus.JobProgress, TenantID: job.TenantID, JobID: job.ID, ParentID: job.ParentID, Payload: job.Progress})
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// isDeadlineExceeded reports whether err's cause is a lease/context deadline
// expiring mid-task, the signal the ErrorHandler installed by StartQueue uses
// to report the task to Backend.MarkStalled as a Stalled observation (spec
// §4.1 maxStalledCount).
func isDeadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// isTerminal reports whether err should stop asynq's own retry loop —
// auth exhaustion, bad requests, and oversized blobs are never fixed by
// retrying the same job (spec §5 "Auth-exhausted errors are terminal").
func isTerminal(err error) bool {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeAuthExhausted, domainerrors.CodeBadRequest, domainerrors.CodeBlobTooLarge:
		return true
	default:
		return false
	}
}

// persistentLogger wraps logsink.JobLogger so every structured log line is
// also appended to the backend's durable per-job log list, not just the
// in-memory ring + bus.
type persistentLogger struct {
	*logsink.JobLogger
	backend   queue.Backend
	queueName string
	jobID     string
}

func (l *persistentLogger) Error(msg string, args ...any) {
	l.JobLogger.Error(msg, args...)
	l.persist("error", msg)
}
func (l *persistentLogger) Warn(msg string, args ...any) {
	l.JobLogger.Warn(msg, args...)
	l.persist("warn", msg)
}
func (l *persistentLogger) Info(msg string, args ...any) {
	l.JobLogger.Info(msg, args...)
	l.persist("info", msg)
}
func (l *persistentLogger) Debug(msg string, args ...any) {
	l.JobLogger.Debug(msg, args...)
	l.persist("debug", msg)
}

func (l *persistentLogger) persist(level, msg string) {
	_ = l.backend.AppendLog(context.Background(), l.queueName, l.jobID, queue.JobLogLine{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Source:    "structured",
	})
}
