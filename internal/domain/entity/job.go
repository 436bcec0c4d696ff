// Package entity holds the domain's plain data types — no behavior beyond
// small invariant-checking helpers, and no third-party imports, mirroring the
// teacher's internal/domain/entity package.
package entity

import (
	"fmt"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// LogEntry is one line appended to a job's LogRing.
type LogEntry struct {
	Timestamp time.Time               `json:"timestamp"`
	Level     valueobject.LogLevel    `json:"level"`
	Message   string                  `json:"message"`
	Source    valueobject.LogSource   `json:"source"`
}

// Job is the durable unit of work tracked by the core, generalizing the
// teacher's entity.GenerationJob (status/progress/timestamps/parent linkage)
// from one job kind to the three named by JobType.
type Job struct {
	ID       string
	TenantID string
	JobType  valueobject.JobType
	ParentID string // optional grouping key for bulk/category enqueues

	CreatedAt   time.Time
	ProcessedAt *time.Time
	FinishedAt  *time.Time

	Attempts    int
	MaxAttempts int

	State    valueobject.JobState
	Progress int // 0..100

	Payload any // job-type-specific request, see payload.go
	Result  any // job-type-specific success object
	Error   string

	Logs []LogEntry
}

// CanTransitionTo reports whether moving from j.State to next is a legal
// transition per spec §3: waiting -> active -> {completed, failed}, or
// active -> stalled -> {active, failed}.
func (j *Job) CanTransitionTo(next valueobject.JobState) bool {
	switch j.State {
	case valueobject.JobStateWaiting:
		return next == valueobject.JobStateActive
	case valueobject.JobStateActive:
		switch next {
		case valueobject.JobStateCompleted, valueobject.JobStateFailed, valueobject.JobStateStalled:
			return true
		default:
			return false
		}
	case valueobject.JobStateStalled:
		return next == valueobject.JobStateActive || next == valueobject.JobStateFailed
	default:
		return false
	}
}

// SetState moves j.State to next, refusing any transition CanTransitionTo
// rejects so a job's in-memory state can never drift from the waiting ->
// active -> {completed, failed} / active <-> stalled shape spec §3 defines.
func (j *Job) SetState(next valueobject.JobState) error {
	if !j.CanTransitionTo(next) {
		return fmt.Errorf("illegal job state transition: %s -> %s", j.State, next)
	}
	j.State = next
	return nil
}

// SetProgress sets j.Progress, clamping to monotonic-non-decreasing semantics
// for the current active span (spec §3 invariant).
func (j *Job) SetProgress(p int) {
	if p < j.Progress {
		p = j.Progress
	}
	if p > 100 {
		p = 100
	}
	j.Progress = p
}
