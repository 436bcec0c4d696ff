package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
)

type fakeBackend struct {
	mu      sync.Mutex
	records map[string]*queue.JobRecord
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[string]*queue.JobRecord)}
}

func key(queueName, jobID string) string { return queueName + "/" + jobID }

func (b *fakeBackend) seed(queueName, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key(queueName, jobID)] = &queue.JobRecord{ID: jobID, State: valueobject.JobStateWaiting}
}

func (b *fakeBackend) Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts queue.EnqueueOptions) error {
	return nil
}
func (b *fakeBackend) EnqueueBatch(ctx context.Context, queueName string, items []queue.BatchItem) error {
	return nil
}
func (b *fakeBackend) GetJob(ctx context.Context, queueName, jobID string) (*queue.JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[key(queueName, jobID)], nil
}
func (b *fakeBackend) ListByState(ctx context.Context, queueName string, states []valueobject.JobState) ([]*queue.JobRecord, error) {
	return nil, nil
}
func (b *fakeBackend) ListByParent(ctx context.Context, queueName, parentID string) ([]*queue.JobRecord, error) {
	return nil, nil
}
func (b *fakeBackend) MarkActive(ctx context.Context, queueName, jobID string, processedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.records[key(queueName, jobID)]
	if rec == nil {
		return fmt.Errorf("not found")
	}
	rec.State = valueobject.JobStateActive
	return nil
}
func (b *fakeBackend) UpdateProgress(ctx context.Context, queueName, jobID string, progress int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.records[key(queueName, jobID)]; rec != nil {
		rec.Progress = progress
	}
	return nil
}
func (b *fakeBackend) MarkCompleted(ctx context.Context, queueName, jobID string, result []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.records[key(queueName, jobID)]
	if rec == nil {
		return fmt.Errorf("not found")
	}
	rec.State = valueobject.JobStateCompleted
	rec.Result = result
	return nil
}
func (b *fakeBackend) MarkFailed(ctx context.Context, queueName, jobID string, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.records[key(queueName, jobID)]
	if rec == nil {
		return fmt.Errorf("not found")
	}
	rec.State = valueobject.JobStateFailed
	rec.Error = errMsg
	return nil
}
func (b *fakeBackend) MarkStalled(ctx context.Context, queueName, jobID string) error { return nil }
func (b *fakeBackend) AppendLog(ctx context.Context, queueName, jobID string, line queue.JobLogLine) error {
	return nil
}
func (b *fakeBackend) Close() error { return nil }

var _ queue.Backend = (*fakeBackend)(nil)

type fakeDispatcher struct {
	err      error
	onDispatch func(job *entity.Job)
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, job *entity.Job, log service.Logger) error {
	if d.onDispatch != nil {
		d.onDispatch(job)
	}
	return d.err
}

func decodeStub(jobType string, raw json.RawMessage) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)  {}
func (nopLogger) Info(msg string, args ...any)   {}
func (nopLogger) Warn(msg string, args ...any)   {}
func (nopLogger) Error(msg string, args ...any)  {}
func (nopLogger) With(args ...any) service.Logger { return nopLogger{} }

func makeTask(t *testing.T, env queue.Envelope) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return asynq.NewTask(taskTypeForTest, b)
}

const taskTypeForTest = "job.execute"

func TestHandleSuccessMarksCompleted(t *testing.T) {
	backend := newFakeBackend()
	backend.seed("tenant1:engagement", "job1")
	bus := eventbus.New()
	defer bus.Close()

	disp := &fakeDispatcher{}
	p := New(asynq.RedisClientOpt{}, taskTypeForTest, backend, disp, decodeStub, bus, nopLogger{})

	env := queue.Envelope{JobID: "job1", TenantID: "tenant1", JobType: valueobject.JobTypeEngagement, Payload: json.RawMessage(`{"a":1}`)}
	task := makeTask(t, env)

	if err := p.handle(context.Background(), "tenant1:engagement", task); err != nil {
		t.Fatalf("handle returned error: %v", err)
	}

	rec, _ := backend.GetJob(context.Background(), "tenant1:engagement", "job1")
	if rec.State != valueobject.JobStateCompleted {
		t.Fatalf("expected completed, got %s", rec.State)
	}
}

func TestHandleDispatchErrorMarksFailedAndRetries(t *testing.T) {
	backend := newFakeBackend()
	backend.seed("tenant1:engagement", "job2")
	bus := eventbus.New()
	defer bus.Close()

	disp := &fakeDispatcher{err: domainerrors.Upstream(fmt.Errorf("boom"))}
	p := New(asynq.RedisClientOpt{}, taskTypeForTest, backend, disp, decodeStub, bus, nopLogger{})

	env := queue.Envelope{JobID: "job2", TenantID: "tenant1", JobType: valueobject.JobTypeEngagement, Payload: json.RawMessage(`{}`)}
	task := makeTask(t, env)

	err := p.handle(context.Background(), "tenant1:engagement", task)
	if err == nil {
		t.Fatalf("expected retryable error to propagate")
	}
	if err == asynq.SkipRetry {
		t.Fatalf("transient error should not skip retry")
	}

	rec, _ := backend.GetJob(context.Background(), "tenant1:engagement", "job2")
	if rec.State != valueobject.JobStateFailed {
		t.Fatalf("expected failed, got %s", rec.State)
	}
}

func TestHandleTerminalErrorSkipsRetry(t *testing.T) {
	backend := newFakeBackend()
	backend.seed("tenant1:engagement", "job3")
	bus := eventbus.New()
	defer bus.Close()

	disp := &fakeDispatcher{err: domainerrors.AuthExhausted(fmt.Errorf("all methods failed"))}
	p := New(asynq.RedisClientOpt{}, taskTypeForTest, backend, disp, decodeStub, bus, nopLogger{})

	env := queue.Envelope{JobID: "job3", TenantID: "tenant1", JobType: valueobject.JobTypeEngagement, Payload: json.RawMessage(`{}`)}
	task := makeTask(t, env)

	err := p.handle(context.Background(), "tenant1:engagement", task)
	if err != asynq.SkipRetry {
		t.Fatalf("expected asynq.SkipRetry for terminal error, got %v", err)
	}

	rec, _ := backend.GetJob(context.Background(), "tenant1:engagement", "job3")
	if rec.State != valueobject.JobStateFailed {
		t.Fatalf("expected failed, got %s", rec.State)
	}
}

func TestHandleDecodeErrorSkipsRetry(t *testing.T) {
	backend := newFakeBackend()
	backend.seed("tenant1:engagement", "job4")
	bus := eventbus.New()
	defer bus.Close()

	disp := &fakeDispatcher{}
	decodeFail := func(jobType string, raw json.RawMessage) (any, error) {
		return nil, fmt.Errorf("unknown job type %s", jobType)
	}
	p := New(asynq.RedisClientOpt{}, taskTypeForTest, backend, disp, decodeFail, bus, nopLogger{})

	env := queue.Envelope{JobID: "job4", TenantID: "tenant1", JobType: "bogus", Payload: json.RawMessage(`{}`)}
	task := makeTask(t, env)

	err := p.handle(context.Background(), "tenant1:engagement", task)
	if err != asynq.SkipRetry {
		t.Fatalf("expected asynq.SkipRetry for decode error, got %v", err)
	}
}

func TestIsDeadlineExceededMatchesContextDeadline(t *testing.T) {
	if !isDeadlineExceeded(fmt.Errorf("lease expired: %w", context.DeadlineExceeded)) {
		t.Fatalf("expected a wrapped context.DeadlineExceeded to be recognized")
	}
	if isDeadlineExceeded(fmt.Errorf("boom")) {
		t.Fatalf("expected an unrelated error not to be recognized as a deadline")
	}
	if isDeadlineExceeded(nil) {
		t.Fatalf("expected a nil error not to be recognized as a deadline")
	}
}
