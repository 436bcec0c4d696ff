// Package fanout implements FanoutHub and JobStateCache (spec §4.9): a
// room-based subscriber graph over EventBus, plus a synchronous projection
// of last-known job state for late subscribers to replay. Grounded on the
// same broker-with-mutex-protected-registry shape as internal/eventbus, here
// specialized to room membership instead of name-keyed subscription.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
)

// maxReplayLogs is the cap on recent log entries replayed to a late
// subscriber (spec §4.9 "<=50 by default").
const maxReplayLogs = 50

// Subscriber is one live connection the hub can deliver events to.
type Subscriber interface {
	// Deliver is called with every event this subscriber should receive.
	// Implementations must not block for long; FanoutHub calls this
	// synchronously from the bus dispatch goroutine.
	Deliver(eventbus.Event)
}

type room struct {
	members map[string]*memberState
}

type memberState struct {
	sub *entity.Subscription
	out Subscriber
}

// Hub maintains the user/job/group rooms and routes EventBus events to the
// subscribers watching them, per the delivery rule in spec §4.9.
type Hub struct {
	mu    sync.RWMutex
	users map[string]*room // room key "user:<tenantId>"
	jobs  map[string]*room // room key "job:<jobId>"
	groups map[string]*room // room key "group:<parentId>"

	cache *JobStateCache

	unsubscribeEvents []func()
}

// New returns an empty Hub wired to bus: it subscribes to every job:* event
// name so it can update its JobStateCache and route deliveries.
func New(bus *eventbus.Bus) *Hub {
	h := &Hub{
		users:  make(map[string]*room),
		jobs:   make(map[string]*room),
		groups: make(map[string]*room),
		cache:  NewJobStateCache(),
	}
	for _, name := range []eventbus.Name{
		eventbus.JobAdded, eventbus.JobStarted, eventbus.JobProgress,
		eventbus.JobCompleted, eventbus.JobFailed, eventbus.JobStalled, eventbus.JobLog,
	} {
		n := name
		unsub := bus.Subscribe(context.Background(), n, func(ev eventbus.Event) {
			h.cache.Apply(ev)
			h.route(ev)
		})
		h.unsubscribeEvents = append(h.unsubscribeEvents, unsub)
	}
	return h
}

// Close detaches the hub from the bus.
func (h *Hub) Close() {
	for _, unsub := range h.unsubscribeEvents {
		unsub()
	}
}

// JobStateCache returns the hub's job-state projection, for serving
// GetJob-style queries to newly-attached subscribers.
func (h *Hub) JobStateCache() *JobStateCache { return h.cache }

// Join adds sub to its tenant's user room (spec §4.9 "added to user:<tenantId>
// automatically") and registers out as its delivery target.
func (h *Hub) Join(sub *entity.Subscription, out Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := "user:" + sub.TenantID
	r := h.users[key]
	if r == nil {
		r = &room{members: make(map[string]*memberState)}
		h.users[key] = r
	}
	r.members[sub.SubscriberID] = &memberState{sub: sub, out: out}
}

// Leave removes subscriberID from every room it may be in.
func (h *Hub) Leave(tenantID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.users["user:"+tenantID]; r != nil {
		delete(r.members, subscriberID)
	}
	for _, r := range h.jobs {
		delete(r.members, subscriberID)
	}
	for _, r := range h.groups {
		delete(r.members, subscriberID)
	}
}

// MonitorJob adds jobID to sub's watch set and joins the job:<jobID> room.
func (h *Hub) MonitorJob(sub *entity.Subscription, jobID string, out Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.WatchedJobs[jobID] = struct{}{}
	key := "job:" + jobID
	r := h.jobs[key]
	if r == nil {
		r = &room{members: make(map[string]*memberState)}
		h.jobs[key] = r
	}
	r.members[sub.SubscriberID] = &memberState{sub: sub, out: out}
}

// MonitorGroup adds parentID to sub's watch set and joins the
// group:<parentID> room.
func (h *Hub) MonitorGroup(sub *entity.Subscription, parentID string, out Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.WatchedGroups[parentID] = struct{}{}
	key := "group:" + parentID
	r := h.groups[key]
	if r == nil {
		r = &room{members: make(map[string]*memberState)}
		h.groups[key] = r
	}
	r.members[sub.SubscriberID] = &memberState{sub: sub, out: out}
}

// UnmonitorJob removes jobID from sub's watch set and the job:<jobID> room.
func (h *Hub) UnmonitorJob(sub *entity.Subscription, jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(sub.WatchedJobs, jobID)
	if r := h.jobs["job:"+jobID]; r != nil {
		delete(r.members, sub.SubscriberID)
	}
}

// route delivers ev to every candidate-room subscriber whose watch set or
// user-room membership admits it (spec §4.9 delivery rule).
func (h *Hub) route(ev eventbus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := make(map[string]struct{})

	deliverFrom := func(r *room) {
		if r == nil {
			return
		}
		for id, m := range r.members {
			if _, already := delivered[id]; already {
				continue
			}
			if h.admits(m.sub, ev) {
				m.out.Deliver(ev)
				delivered[id] = struct{}{}
			}
		}
	}

	deliverFrom(h.users["user:"+ev.TenantID])
	if ev.JobID != "" {
		deliverFrom(h.jobs["job:"+ev.JobID])
	}
	if ev.ParentID != "" {
		deliverFrom(h.groups["group:"+ev.ParentID])
	}
}

// admits implements the delivery rule: deliver if the event's jobId is
// watched, the event's parentId's group is watched, or the subscriber was
// reached purely through its user room (general lifecycle events).
func (h *Hub) admits(sub *entity.Subscription, ev eventbus.Event) bool {
	if ev.JobID != "" && sub.WatchesJob(ev.JobID) {
		return true
	}
	if ev.ParentID != "" && sub.WatchesGroup(ev.ParentID) {
		return true
	}
	// Reached via the user room with no more specific watch registered:
	// still admit general lifecycle events (job:added, worker:error) so a
	// user-room subscriber isn't deaf to everything.
	if ev.Name == eventbus.JobAdded || ev.Name == eventbus.WorkerError {
		return true
	}
	return false
}

// JobStateCache is a synchronous projection of last-known job state,
// updated on every lifecycle event so late subscribers can be caught up
// without replaying the whole event history (spec §4.9).
type JobStateCache struct {
	mu    sync.RWMutex
	state map[string]*entity.JobProjection
	logs  map[string][]entity.LogEntry
}

// NewJobStateCache returns an empty cache.
func NewJobStateCache() *JobStateCache {
	return &JobStateCache{
		state: make(map[string]*entity.JobProjection),
		logs:  make(map[string][]entity.LogEntry),
	}
}

// Apply updates the cache from one EventBus event.
func (c *JobStateCache) Apply(ev eventbus.Event) {
	if ev.JobID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Name == eventbus.JobLog {
		if entry, ok := ev.Payload.(entity.LogEntry); ok {
			lines := append(c.logs[ev.JobID], entry)
			if len(lines) > maxReplayLogs {
				lines = lines[len(lines)-maxReplayLogs:]
			}
			c.logs[ev.JobID] = lines
		}
		return
	}

	proj := c.state[ev.JobID]
	if proj == nil {
		proj = &entity.JobProjection{JobID: ev.JobID, TenantID: ev.TenantID, ParentID: ev.ParentID}
		c.state[ev.JobID] = proj
	}
	proj.UpdatedAt = time.Now()

	switch ev.Name {
	case eventbus.JobAdded:
		proj.State = valueobject.JobStateWaiting
	case eventbus.JobStarted:
		proj.State = valueobject.JobStateActive
	case eventbus.JobProgress:
		if p, ok := ev.Payload.(int); ok {
			proj.Progress = p
		}
	case eventbus.JobCompleted:
		proj.State = valueobject.JobStateCompleted
		proj.Result = ev.Payload
	case eventbus.JobFailed:
		proj.State = valueobject.JobStateFailed
		if errMsg, ok := ev.Payload.(string); ok {
			proj.Error = errMsg
		}
	case eventbus.JobStalled:
		proj.State = valueobject.JobStateStalled
	}
}

// Get returns the cached projection and recent log lines for jobID, if any.
func (c *JobStateCache) Get(jobID string) (*entity.JobProjection, []entity.LogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	proj, ok := c.state[jobID]
	if !ok {
		return nil, nil, false
	}
	projCopy := *proj
	logsCopy := make([]entity.LogEntry, len(c.logs[jobID]))
	copy(logsCopy, c.logs[jobID])
	return &projCopy, logsCopy, true
}
