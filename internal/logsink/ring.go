// Package logsink implements JobLogSink (spec §4.3/§9): a bounded per-job
// ring of log lines, safe for concurrent writers, that also publishes every
// line onto the EventBus as job:log. Grounded on the teacher's habit of
// wrapping a third-party logger behind the domain/service.Logger interface
// (internal/domain/service/interfaces.go) — here the wrapped logger appends
// to a Ring instead of (or in addition to) writing to the real sink.
package logsink

import (
	"context"
	"sync"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/eventbus"
)

// DefaultCapacity is the default ring size (spec §3 "LogRing", default N=100).
const DefaultCapacity = 100

// Ring is a fixed-capacity, concurrency-safe buffer of the most recent log
// entries for one job. Once capacity is exceeded, the oldest entry is
// dropped.
type Ring struct {
	mu   sync.Mutex
	cap  int
	buf  []entity.LogEntry
}

// NewRing returns an empty Ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{cap: capacity}
}

// Append adds entry, evicting the oldest entry if the ring is full.
func (r *Ring) Append(entry entity.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, entry)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// Snapshot returns a copy of the entries currently held, oldest first.
func (r *Ring) Snapshot() []entity.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.LogEntry, len(r.buf))
	copy(out, r.buf)
	return out
}

// JobLogger is the per-job logger installed for the duration of one worker
// dispatch (spec §4.3 step 2): every write appends to the job's Ring and
// publishes job:log on the bus.
type JobLogger struct {
	ring     *Ring
	bus      *eventbus.Bus
	tenantID string
	jobID    string
	parentID string
	fields   []any
}

// New returns a JobLogger for one job, backed by a fresh Ring of capacity.
func New(bus *eventbus.Bus, tenantID, jobID, parentID string, capacity int) (*JobLogger, *Ring) {
	ring := NewRing(capacity)
	return &JobLogger{ring: ring, bus: bus, tenantID: tenantID, jobID: jobID, parentID: parentID}, ring
}

func (l *JobLogger) log(level valueobject.LogLevel, msg string, args ...any) {
	entry := entity.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Source:    valueobject.LogSourceStructured,
	}
	l.ring.Append(entry)
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{
			Name:     eventbus.JobLog,
			TenantID: l.tenantID,
			JobID:    l.jobID,
			ParentID: l.parentID,
			Payload:  entry,
		})
	}
}

func (l *JobLogger) Debug(msg string, args ...any) { l.log(valueobject.LogLevelDebug, msg, args...) }
func (l *JobLogger) Info(msg string, args ...any)  { l.log(valueobject.LogLevelInfo, msg, args...) }
func (l *JobLogger) Warn(msg string, args ...any)  { l.log(valueobject.LogLevelWarn, msg, args...) }
func (l *JobLogger) Error(msg string, args ...any) { l.log(valueobject.LogLevelError, msg, args...) }

// With returns a JobLogger sharing the same ring/bus — fields are accepted
// for interface compatibility with service.Logger but are not rendered
// structurally here, matching the teacher's lightweight With() wrappers
// that mostly exist for call-site ergonomics rather than structured output.
func (l *JobLogger) With(args ...any) service.Logger {
	return &JobLogger{ring: l.ring, bus: l.bus, tenantID: l.tenantID, jobID: l.jobID, parentID: l.parentID, fields: append(append([]any{}, l.fields...), args...)}
}

type captureKey struct{}

// WithCapture installs w as the goroutine-local ambient-output sink for ctx
// (spec §4.3 step 3 / §9 "Global console redirection"). It is
// context-scoped rather than a true global redirect, so concurrent workers
// never cross-contaminate each other's captured output.
func WithCapture(ctx context.Context, w *CaptureWriter) context.Context {
	return context.WithValue(ctx, captureKey{}, w)
}

// CaptureFromContext returns the CaptureWriter installed on ctx, or nil if
// none was installed.
func CaptureFromContext(ctx context.Context) *CaptureWriter {
	w, _ := ctx.Value(captureKey{}).(*CaptureWriter)
	return w
}

// CaptureWriter is an io.Writer that appends every write as a captured log
// line on a job's Ring, rather than letting ambient writes reach a shared
// stdout/stderr.
type CaptureWriter struct {
	ring     *Ring
	bus      *eventbus.Bus
	tenantID string
	jobID    string
	parentID string
}

// NewCaptureWriter returns a CaptureWriter appending to ring.
func NewCaptureWriter(ring *Ring, bus *eventbus.Bus, tenantID, jobID, parentID string) *CaptureWriter {
	return &CaptureWriter{ring: ring, bus: bus, tenantID: tenantID, jobID: jobID, parentID: parentID}
}

// Write implements io.Writer, appending p as one captured log entry.
func (w *CaptureWriter) Write(p []byte) (int, error) {
	entry := entity.LogEntry{
		Timestamp: time.Now(),
		Level:     valueobject.LogLevelInfo,
		Message:   string(p),
		Source:    valueobject.LogSourceCaptured,
	}
	w.ring.Append(entry)
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{
			Name:     eventbus.JobLog,
			TenantID: w.tenantID,
			JobID:    w.jobID,
			ParentID: w.parentID,
			Payload:  entry,
		})
	}
	return len(p), nil
}
