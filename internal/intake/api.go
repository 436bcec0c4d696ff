// Package intake is the command surface described in spec §2 "Intake": the
// one entry point callers (HTTP handlers, tests, future transports) use to
// enqueue work and attach live subscribers, wiring queueregistry.Registry
// together with fanout.Hub and the account directory. Grounded on the
// teacher's thin service-layer-over-registry pattern in
// internal/service/generation_service.go, which the same way fans a single
// public call out to a repository plus a queue enqueue.
package intake

import (
	"context"
	"fmt"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/fanout"
	"github.com/Pimboto/DarkStackBackend/internal/queueregistry"
)

// API is the intake command surface. All methods are safe for concurrent
// use by multiple callers.
type API struct {
	registry *queueregistry.Registry
	hub      *fanout.Hub
	accounts service.AccountStore
}

// New returns an API wired to registry for enqueueing, hub for live
// delivery, and accounts for category-based fan-out.
func New(registry *queueregistry.Registry, hub *fanout.Hub, accounts service.AccountStore) *API {
	return &API{registry: registry, hub: hub, accounts: accounts}
}

// Enqueue submits one job of jobType for tenantID, returning its id.
// parentID is optional — non-empty when the caller wants this job grouped
// under a batch (spec §4.2 "parentId").
func (a *API) Enqueue(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string, payload any) (string, error) {
	return a.registry.Enqueue(ctx, tenantID, jobType, parentID, payload)
}

// EnqueueBulk submits len(payloads) jobs of jobType sharing the
// caller-supplied parentID (an empty parentID is an error), returning the
// parentID and every generated job id in order (spec §2 "enqueueBulk").
func (a *API) EnqueueBulk(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string, payloads []any) (string, []string, error) {
	if parentID == "" {
		return "", nil, fmt.Errorf("intake: EnqueueBulk requires a non-empty parentID")
	}
	ids, err := a.registry.EnqueueBatch(ctx, tenantID, jobType, parentID, payloads)
	if err != nil {
		return "", nil, err
	}
	return parentID, ids, nil
}

// CategoryJobBuilder turns one account's metadata into a job-type-specific
// payload (EngagementPayload/MassPostPayload/ChatPayload). Supplied by the
// caller since only it knows which job type — and which options within it —
// this category enqueue is for.
type CategoryJobBuilder func(meta entity.AccountMetadata) any

// EnqueueByCategory fetches every account tagged categoryID for tenantID and
// enqueues one job per account under a shared parentID, built via build
// (spec §2 "enqueueByCategory"). Accounts have no persisted SessionData at
// this entry point, so each job starts from a zero-value SessionData; the
// AuthCoordinator's fresh-login step (using the account's stored password)
// is what actually establishes a session for a brand-new job.
func (a *API) EnqueueByCategory(ctx context.Context, tenantID, categoryID string, jobType valueobject.JobType, parentID string, build CategoryJobBuilder) (string, []string, error) {
	accounts, err := a.accounts.GetAccountsByCategory(ctx, tenantID, categoryID)
	if err != nil {
		return "", nil, fmt.Errorf("intake: list accounts for category %s: %w", categoryID, err)
	}
	if len(accounts) == 0 {
		return "", nil, fmt.Errorf("intake: category %s has no accounts for tenant %s", categoryID, tenantID)
	}

	payloads := make([]any, 0, len(accounts))
	for _, meta := range accounts {
		payloads = append(payloads, build(meta))
	}
	return a.EnqueueBulk(ctx, tenantID, jobType, parentID, payloads)
}

// GetJob returns the backend-projected state of one job.
func (a *API) GetJob(ctx context.Context, tenantID string, jobType valueobject.JobType, jobID string) (*queue.JobRecord, error) {
	return a.registry.GetJob(ctx, tenantID, jobType, jobID)
}

// ListJobsByParent returns every job sharing parentID within (tenantID, jobType).
func (a *API) ListJobsByParent(ctx context.Context, tenantID string, jobType valueobject.JobType, parentID string) ([]*queue.JobRecord, error) {
	return a.registry.ListByParent(ctx, tenantID, jobType, parentID)
}

// Subscribe attaches out as subscriberID's delivery target for tenantID's
// user room, returning the new entity.Subscription for subsequent
// MonitorJob/MonitorGroup/Unmonitor calls and an unsubscribe func that
// detaches it from every room.
func (a *API) Subscribe(tenantID, subscriberID string, out fanout.Subscriber) (*entity.Subscription, func()) {
	sub := entity.NewSubscription(subscriberID, tenantID)
	a.hub.Join(sub, out)
	return sub, func() { a.hub.Leave(tenantID, subscriberID) }
}

// MonitorJob starts delivering jobID's events to sub, plus replays the
// job's last-known state and recent log lines if already cached (spec §4.9
// "late subscriber replay").
func (a *API) MonitorJob(sub *entity.Subscription, jobID string, out fanout.Subscriber) (*entity.JobProjection, []entity.LogEntry) {
	a.hub.MonitorJob(sub, jobID, out)
	proj, logs, _ := a.hub.JobStateCache().Get(jobID)
	return proj, logs
}

// MonitorGroup starts delivering parentID-scoped events to sub.
func (a *API) MonitorGroup(sub *entity.Subscription, parentID string, out fanout.Subscriber) {
	a.hub.MonitorGroup(sub, parentID, out)
}

// UnmonitorJob stops delivering jobID's events to sub.
func (a *API) UnmonitorJob(sub *entity.Subscription, jobID string) {
	a.hub.UnmonitorJob(sub, jobID)
}
