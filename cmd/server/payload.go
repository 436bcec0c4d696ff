package main

import (
	"encoding/json"
	"fmt"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// decodeJobPayload is the workerpool.PayloadDecoder for this process: it
// unmarshals an Envelope's raw payload bytes back into the concrete,
// job-type-specific struct Dispatcher expects on entity.Job.Payload. This is
// the mirror image of queueregistry.Registry.Enqueue's json.Marshal(payload)
// call — both sides agree on the plain Go struct encoding (no wire-format
// DTOs here; those live only at the transport/http edge).
func decodeJobPayload(jobType string, raw json.RawMessage) (any, error) {
	switch valueobject.JobType(jobType) {
	case valueobject.JobTypeEngagement:
		var p entity.EngagementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode engagement payload: %w", err)
		}
		return p, nil
	case valueobject.JobTypeMassPost:
		var p entity.MassPostPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode massPost payload: %w", err)
		}
		return p, nil
	case valueobject.JobTypeChat:
		var p entity.ChatPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode chat payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown job type %q", jobType)
	}
}
