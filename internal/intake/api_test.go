package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
	"github.com/Pimboto/DarkStackBackend/internal/fanout"
	"github.com/Pimboto/DarkStackBackend/internal/queueregistry"
)

type memBackend struct {
	mu      sync.Mutex
	records map[string]*queue.JobRecord
	parents map[string][]string
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[string]*queue.JobRecord), parents: make(map[string][]string)}
}

func (b *memBackend) Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts queue.EnqueueOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[queueName+"/"+jobID] = &queue.JobRecord{ID: jobID, State: valueobject.JobStateWaiting}
	return nil
}
func (b *memBackend) EnqueueBatch(ctx context.Context, queueName string, items []queue.BatchItem) error {
	for _, item := range items {
		if err := b.Enqueue(ctx, queueName, item.JobID, item.Payload, item.Opts); err != nil {
			return err
		}
	}
	return nil
}
func (b *memBackend) GetJob(ctx context.Context, queueName, jobID string) (*queue.JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[queueName+"/"+jobID], nil
}
func (b *memBackend) ListByState(ctx context.Context, queueName string, states []valueobject.JobState) ([]*queue.JobRecord, error) {
	return nil, nil
}
func (b *memBackend) ListByParent(ctx context.Context, queueName, parentID string) ([]*queue.JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*queue.JobRecord
	for _, id := range b.parents[queueName+"/"+parentID] {
		if rec := b.records[queueName+"/"+id]; rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
func (b *memBackend) MarkActive(ctx context.Context, queueName, jobID string, processedAt time.Time) error {
	return nil
}
func (b *memBackend) UpdateProgress(ctx context.Context, queueName, jobID string, progress int) error {
	return nil
}
func (b *memBackend) MarkCompleted(ctx context.Context, queueName, jobID string, result []byte) error {
	return nil
}
func (b *memBackend) MarkFailed(ctx context.Context, queueName, jobID string, errMsg string) error {
	return nil
}
func (b *memBackend) MarkStalled(ctx context.Context, queueName, jobID string) error { return nil }
func (b *memBackend) AppendLog(ctx context.Context, queueName, jobID string, line queue.JobLogLine) error {
	return nil
}
func (b *memBackend) Close() error { return nil }

var _ queue.Backend = (*memBackend)(nil)

type fakeWorkerStarter struct{}

func (fakeWorkerStarter) StartQueue(queueName string, concurrency int) error { return nil }

type fakeAccountStore struct {
	byCategory map[string][]entity.AccountMetadata
}

func (s *fakeAccountStore) GetAccountsByCategory(ctx context.Context, tenantID, categoryID string) ([]entity.AccountMetadata, error) {
	return s.byCategory[categoryID], nil
}
func (s *fakeAccountStore) GetAccount(ctx context.Context, accountID string) (*entity.AccountMetadata, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *fakeAccountStore) UpdateTokens(ctx context.Context, accountID string, update entity.TokenUpdate) error {
	return nil
}

type recordingSubscriber struct {
	mu   sync.Mutex
	recv []eventbus.Event
}

func (r *recordingSubscriber) Deliver(ev eventbus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recv = append(r.recv, ev)
}

func (r *recordingSubscriber) events() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.Event, len(r.recv))
	copy(out, r.recv)
	return out
}

func newTestAPI(accounts *fakeAccountStore) (*API, *eventbus.Bus, *fanout.Hub) {
	bus := eventbus.New()
	hub := fanout.New(bus)
	backend := newMemBackend()
	registry := queueregistry.New(backend, bus, fakeWorkerStarter{}, 1)
	return New(registry, hub, accounts), bus, hub
}

func TestEnqueueReturnsJobID(t *testing.T) {
	api, bus, hub := newTestAPI(&fakeAccountStore{})
	defer bus.Close()
	defer hub.Close()

	id, err := api.Enqueue(context.Background(), "tenant1", valueobject.JobTypeEngagement, "", entity.EngagementPayload{})
	if err != nil {
		t.Fatalf("Enqueue errored: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty job id")
	}

	rec, err := api.GetJob(context.Background(), "tenant1", valueobject.JobTypeEngagement, id)
	if err != nil {
		t.Fatalf("GetJob errored: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a job record for %s", id)
	}
}

func TestEnqueueBulkRequiresParentID(t *testing.T) {
	api, bus, hub := newTestAPI(&fakeAccountStore{})
	defer bus.Close()
	defer hub.Close()

	_, _, err := api.EnqueueBulk(context.Background(), "tenant1", valueobject.JobTypeMassPost, "", []any{entity.MassPostPayload{}})
	if err == nil {
		t.Fatalf("expected an error for empty parentID")
	}
}

func TestEnqueueByCategoryBuildsOneJobPerAccount(t *testing.T) {
	accounts := &fakeAccountStore{byCategory: map[string][]entity.AccountMetadata{
		"influencers": {
			{AccountID: "acct1"},
			{AccountID: "acct2"},
		},
	}}
	api, bus, hub := newTestAPI(accounts)
	defer bus.Close()
	defer hub.Close()

	parentID, ids, err := api.EnqueueByCategory(context.Background(), "tenant1", "influencers", valueobject.JobTypeEngagement, "batch1", func(meta entity.AccountMetadata) any {
		return entity.EngagementPayload{AccountMetadata: meta}
	})
	if err != nil {
		t.Fatalf("EnqueueByCategory errored: %v", err)
	}
	if parentID != "batch1" {
		t.Fatalf("expected parentID batch1, got %s", parentID)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 job ids, got %d", len(ids))
	}
}

func TestEnqueueByCategoryErrorsOnEmptyCategory(t *testing.T) {
	api, bus, hub := newTestAPI(&fakeAccountStore{})
	defer bus.Close()
	defer hub.Close()

	_, _, err := api.EnqueueByCategory(context.Background(), "tenant1", "empty", valueobject.JobTypeEngagement, "batch1", func(meta entity.AccountMetadata) any {
		return entity.EngagementPayload{}
	})
	if err == nil {
		t.Fatalf("expected an error for a category with no accounts")
	}
}

func TestSubscribeReceivesJobAddedEvent(t *testing.T) {
	api, bus, hub := newTestAPI(&fakeAccountStore{})
	defer bus.Close()
	defer hub.Close()

	out := &recordingSubscriber{}
	sub, unsub := api.Subscribe("tenant1", "sub1", out)
	defer unsub()

	id, err := api.Enqueue(context.Background(), "tenant1", valueobject.JobTypeEngagement, "", entity.EngagementPayload{})
	if err != nil {
		t.Fatalf("Enqueue errored: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(out.events()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	evs := out.events()
	if len(evs) == 0 {
		t.Fatalf("expected at least one delivered event")
	}
	if evs[0].JobID != id {
		t.Fatalf("expected event for job %s, got %s", id, evs[0].JobID)
	}
	if sub.TenantID != "tenant1" {
		t.Fatalf("expected subscription tenant tenant1, got %s", sub.TenantID)
	}
}

func TestMonitorJobReplaysLastKnownState(t *testing.T) {
	api, bus, hub := newTestAPI(&fakeAccountStore{})
	defer bus.Close()
	defer hub.Close()

	id, err := api.Enqueue(context.Background(), "tenant1", valueobject.JobTypeEngagement, "", entity.EngagementPayload{})
	if err != nil {
		t.Fatalf("Enqueue errored: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if proj, _, ok := hub.JobStateCache().Get(id); ok && proj != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	out := &recordingSubscriber{}
	sub, unsub := api.Subscribe("tenant1", "sub2", out)
	defer unsub()

	proj, _ := api.MonitorJob(sub, id, out)
	if proj == nil {
		t.Fatalf("expected a cached projection for job %s", id)
	}
	if proj.State != valueobject.JobStateWaiting {
		t.Fatalf("expected waiting state, got %s", proj.State)
	}
}
