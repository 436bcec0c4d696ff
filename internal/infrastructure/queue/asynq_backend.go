package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// taskType is the single asynq task type used for every queue — the queue
// name itself (not the task type) is what routes a job to its bounded-
// concurrency worker, mirroring how WorkerPool binds one *asynq.Server per
// logical queue (spec §4.1/§4.3).
const taskType = "job.execute"

// AsynqBackend implements domain/queue.Backend on top of asynq for
// enqueue/dispatch/retry/backoff and a Redis-backed projectionStore for the
// rest (spec §4.1 "EXPANSION: concrete adapter").
type AsynqBackend struct {
	client   *asynq.Client
	redisOpt asynq.RedisClientOpt
	rdb      *redis.Client
	proj     *projectionStore

	stallMu sync.Mutex
	stalls  map[string]int // jobKey -> consecutive stalled-detection count

	maxStalledCount int
}

// Config configures an AsynqBackend.
type Config struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	MaxStalledCount int // default 2 per spec §4.1
}

// NewAsynqBackend connects to Redis and returns a ready Backend.
func NewAsynqBackend(cfg Config) *AsynqBackend {
	if cfg.MaxStalledCount <= 0 {
		cfg.MaxStalledCount = 2
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	return &AsynqBackend{
		client:          asynq.NewClient(redisOpt),
		redisOpt:        redisOpt,
		rdb:             rdb,
		proj:            newProjectionStore(rdb),
		stalls:          make(map[string]int),
		maxStalledCount: cfg.MaxStalledCount,
	}
}

// RedisClientOpt exposes the asynq Redis connection options needed by
// WorkerPool to construct its own *asynq.Server instances against the same
// Redis instance.
func (b *AsynqBackend) RedisClientOpt() asynq.RedisClientOpt { return b.redisOpt }

func (b *AsynqBackend) Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts queue.EnqueueOptions) error {
	task := asynq.NewTask(taskType, payload, asynq.TaskID(jobID))
	asynqOpts := toAsynqOptions(queueName, opts)
	if _, err := b.client.EnqueueContext(ctx, task, asynqOpts...); err != nil {
		return fmt.Errorf("asynq enqueue: %w", err)
	}

	rec := &queue.JobRecord{
		ID:          jobID,
		State:       valueobject.JobStateWaiting,
		MaxAttempts: opts.Attempts,
		CreatedAt:   time.Now(),
	}
	var env queue.Envelope
	if err := json.Unmarshal(payload, &env); err == nil {
		rec.TenantID = env.TenantID
		rec.ParentID = env.ParentID
	}
	return b.proj.create(ctx, queueName, rec)
}

func (b *AsynqBackend) EnqueueBatch(ctx context.Context, queueName string, items []queue.BatchItem) error {
	for _, item := range items {
		if err := b.Enqueue(ctx, queueName, item.JobID, item.Payload, item.Opts); err != nil {
			return err
		}
	}
	return nil
}

func (b *AsynqBackend) GetJob(ctx context.Context, queueName, jobID string) (*queue.JobRecord, error) {
	return b.proj.get(ctx, queueName, jobID)
}

func (b *AsynqBackend) ListByState(ctx context.Context, queueName string, states []valueobject.JobState) ([]*queue.JobRecord, error) {
	return b.proj.listByState(ctx, queueName, states)
}

func (b *AsynqBackend) ListByParent(ctx context.Context, queueName, parentID string) ([]*queue.JobRecord, error) {
	return b.proj.listByParent(ctx, queueName, parentID)
}

func (b *AsynqBackend) MarkActive(ctx context.Context, queueName, jobID string, processedAt time.Time) error {
	return b.proj.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		rec.State = valueobject.JobStateActive
		rec.Attempts++
		t := processedAt
		rec.ProcessedAt = &t
	})
}

func (b *AsynqBackend) UpdateProgress(ctx context.Context, queueName, jobID string, progress int) error {
	return b.proj.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		if progress > rec.Progress {
			rec.Progress = progress
		}
	})
}

func (b *AsynqBackend) MarkCompleted(ctx context.Context, queueName, jobID string, result []byte) error {
	b.resetStallCount(queueName, jobID)
	now := time.Now()
	return b.proj.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		rec.State = valueobject.JobStateCompleted
		rec.Progress = 100
		rec.Result = result
		rec.FinishedAt = &now
	})
}

func (b *AsynqBackend) MarkFailed(ctx context.Context, queueName, jobID string, errMsg string) error {
	b.resetStallCount(queueName, jobID)
	now := time.Now()
	return b.proj.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		rec.State = valueobject.JobStateFailed
		rec.Error = errMsg
		rec.FinishedAt = &now
	})
}

// MarkStalled records one stalled detection for jobID (spec §4.1
// maxStalledCount). Once the configured threshold is reached the job is
// converted to a terminal failure rather than left to asynq's own MaxRetry,
// per spec's "up to 5 attempts unless overridden" policy layered on top of
// asynq's redelivery.
func (b *AsynqBackend) MarkStalled(ctx context.Context, queueName, jobID string) error {
	key := queueName + ":" + jobID
	b.stallMu.Lock()
	b.stalls[key]++
	count := b.stalls[key]
	b.stallMu.Unlock()

	err := b.proj.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		rec.State = valueobject.JobStateStalled
	})
	if err != nil {
		return err
	}

	if count >= b.maxStalledCount {
		return b.MarkFailed(ctx, queueName, jobID, fmt.Sprintf("job stalled %d times, exceeding max of %d", count, b.maxStalledCount))
	}
	return nil
}

func (b *AsynqBackend) resetStallCount(queueName, jobID string) {
	b.stallMu.Lock()
	delete(b.stalls, queueName+":"+jobID)
	b.stallMu.Unlock()
}

func (b *AsynqBackend) AppendLog(ctx context.Context, queueName, jobID string, line queue.JobLogLine) error {
	return b.proj.appendLog(ctx, queueName, jobID, line)
}

func (b *AsynqBackend) Close() error {
	if err := b.client.Close(); err != nil {
		return err
	}
	return b.rdb.Close()
}

// TaskType returns the single asynq task type this backend enqueues under.
// WorkerPool registers its Dispatcher handler against this type on every
// per-queue ServeMux.
func (b *AsynqBackend) TaskType() string { return taskType }

var _ queue.Backend = (*AsynqBackend)(nil)

// toAsynqOptions translates the abstract EnqueueOptions (spec §4.1) onto
// concrete asynq task options.
func toAsynqOptions(queueName string, opts queue.EnqueueOptions) []asynq.Option {
	out := []asynq.Option{asynq.Queue(queueName)}
	if opts.Attempts > 0 {
		out = append(out, asynq.MaxRetry(opts.Attempts))
	}
	if !opts.DelayUntil.IsZero() {
		out = append(out, asynq.ProcessAt(opts.DelayUntil))
	}
	if opts.RemoveOnCompleteAge > 0 {
		out = append(out, asynq.Retention(opts.RemoveOnCompleteAge))
	}
	return out
}
