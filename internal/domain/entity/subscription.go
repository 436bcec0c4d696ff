package entity

import (
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// Subscription tracks what one live subscriber is watching (spec §3).
type Subscription struct {
	SubscriberID   string
	TenantID       string
	WatchedJobs    map[string]struct{}
	WatchedGroups  map[string]struct{}
}

// NewSubscription creates an empty Subscription for subscriberID/tenantID.
func NewSubscription(subscriberID, tenantID string) *Subscription {
	return &Subscription{
		SubscriberID:  subscriberID,
		TenantID:      tenantID,
		WatchedJobs:   make(map[string]struct{}),
		WatchedGroups: make(map[string]struct{}),
	}
}

// WatchesJob reports whether the subscription is monitoring jobID.
func (s *Subscription) WatchesJob(jobID string) bool {
	_, ok := s.WatchedJobs[jobID]
	return ok
}

// WatchesGroup reports whether the subscription is monitoring parentID.
func (s *Subscription) WatchesGroup(parentID string) bool {
	_, ok := s.WatchedGroups[parentID]
	return ok
}

// JobProjection is the last known state of a live job, kept by JobStateCache
// for replay to late subscribers (spec §3).
type JobProjection struct {
	JobID     string
	TenantID  string
	ParentID  string
	State     valueobject.JobState
	Progress  int
	Result    any
	Error     string
	UpdatedAt time.Time
}
