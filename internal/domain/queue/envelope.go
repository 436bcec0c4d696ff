package queue

import (
	"encoding/json"

	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// Envelope is the wire format QueueRegistry enqueues and WorkerPool
// deserializes — the payload bytes a Backend implementation actually stores
// and redelivers are an Envelope, not the bare job-type-specific payload, so
// the worker side can reconstruct a full entity.Job without a second lookup.
type Envelope struct {
	JobID       string              `json:"jobId"`
	TenantID    string              `json:"tenantId"`
	JobType     valueobject.JobType `json:"jobType"`
	ParentID    string              `json:"parentId,omitempty"`
	MaxAttempts int                 `json:"maxAttempts"`
	Payload     json.RawMessage     `json:"payload"`
}
