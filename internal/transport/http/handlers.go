package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/intake"
)

// Handlers exposes the Intake command surface (spec §6) over plain HTTP/JSON,
// directly modeled on the teacher's one-struct-per-resource handler shape
// (internal/handlers/jobs.go).
type Handlers struct {
	api *intake.API
}

// NewHandlers returns Handlers bound to api.
func NewHandlers(api *intake.API) *Handlers {
	return &Handlers{api: api}
}

func jobTypeParam(c *gin.Context) (valueobject.JobType, bool) {
	jt := valueobject.JobType(c.Param("jobType"))
	if !jt.Valid() {
		respondError(c, domainerrors.BadRequest("unknown jobType %q", c.Param("jobType")))
		return "", false
	}
	return jt, true
}

// Enqueue handles POST /tenants/:tenant/jobs/:jobType.
func (h *Handlers) Enqueue(c *gin.Context) {
	jt, ok := jobTypeParam(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, domainerrors.BadRequest("read body: %v", err))
		return
	}
	payload, err := decodePayload(jt, raw)
	if err != nil {
		respondError(c, domainerrors.BadRequest("%v", err))
		return
	}

	parentID := c.Query("parentId")
	jobID, err := h.api.Enqueue(c.Request.Context(), c.Param("tenant"), jt, parentID, payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"jobId": jobID})
}

// EnqueueBulk handles POST /tenants/:tenant/jobs/:jobType/bulk, body
// `{payloads: [...]}` each decoded per jobType.
func (h *Handlers) EnqueueBulk(c *gin.Context) {
	jt, ok := jobTypeParam(c)
	if !ok {
		return
	}
	var body struct {
		Payloads []json.RawMessage `json:"payloads"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domainerrors.BadRequest("%v", err))
		return
	}
	payloads := make([]any, 0, len(body.Payloads))
	for _, raw := range body.Payloads {
		payload, err := decodePayload(jt, raw)
		if err != nil {
			respondError(c, domainerrors.BadRequest("%v", err))
			return
		}
		payloads = append(payloads, payload)
	}

	parentID := uuid.NewString()
	parentID, jobIDs, err := h.api.EnqueueBulk(c.Request.Context(), c.Param("tenant"), jt, parentID, payloads)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"parentId": parentID, "jobIds": jobIDs})
}

// EnqueueByCategory handles POST /tenants/:tenant/jobs/:jobType/category/:categoryId.
// The request body carries only the shared, account-independent options
// (e.g. engagementOptions+strategyType, or postOptions, or messages+
// recipients) — SessionData and AccountMetadata are filled in per account
// from the account directory, per spec §6 "enqueueByCategory: expands one
// job per account in categoryId".
func (h *Handlers) EnqueueByCategory(c *gin.Context) {
	jt, ok := jobTypeParam(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, domainerrors.BadRequest("read body: %v", err))
		return
	}

	build, err := categoryBuilder(jt, raw)
	if err != nil {
		respondError(c, domainerrors.BadRequest("%v", err))
		return
	}

	parentID := uuid.NewString()
	parentID, jobIDs, err := h.api.EnqueueByCategory(c.Request.Context(), c.Param("tenant"), c.Param("categoryId"), jt, parentID, build)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"parentId": parentID, "jobIds": jobIDs, "accountCount": len(jobIDs)})
}

// categoryBuilder parses the category-enqueue request body for jobType and
// returns an intake.CategoryJobBuilder closing over the shared, per-category
// options, substituting each account's own metadata and a zero-value
// SessionData (a brand-new job establishes its session via AuthCoordinator's
// fresh-login step, using the account's stored password).
func categoryBuilder(jobType valueobject.JobType, raw []byte) (intake.CategoryJobBuilder, error) {
	switch jobType {
	case valueobject.JobTypeEngagement:
		var req engagementRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		strategy := valueobject.PacingStrategy(req.StrategyType)
		if strategy != valueobject.StrategyUniform && strategy != valueobject.StrategyHumanLike {
			return nil, domainerrors.BadRequest("unknown strategyType %q", req.StrategyType)
		}
		opts := req.EngagementOptions.toEntity()
		return func(meta entity.AccountMetadata) any {
			return entity.EngagementPayload{EngagementOptions: opts, StrategyType: strategy, AccountMetadata: meta}
		}, nil
	case valueobject.JobTypeMassPost:
		var req massPostRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		opts := req.PostOptions.toEntity()
		return func(meta entity.AccountMetadata) any {
			return entity.MassPostPayload{PostOptions: opts, AccountMetadata: meta}
		}, nil
	case valueobject.JobTypeChat:
		var req chatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		if len(req.Messages) == 0 || len(req.Recipients) == 0 {
			return nil, domainerrors.BadRequest("messages and recipients must not be empty")
		}
		messages := []string(req.Messages)
		recipients := req.Recipients
		return func(meta entity.AccountMetadata) any {
			return entity.ChatPayload{Messages: messages, Recipients: recipients, AccountMetadata: meta}
		}, nil
	default:
		return nil, domainerrors.BadRequest("unknown jobType %q", jobType)
	}
}

// GetJob handles GET /tenants/:tenant/jobs/:jobType/:jobId.
func (h *Handlers) GetJob(c *gin.Context) {
	jt, ok := jobTypeParam(c)
	if !ok {
		return
	}
	job, err := h.api.GetJob(c.Request.Context(), c.Param("tenant"), jt, c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil {
		respondError(c, domainerrors.NotFound("job %s not found", c.Param("jobId")))
		return
	}
	respondOK(c, job)
}

// ListJobsByParent handles GET /tenants/:tenant/jobs/:jobType/parent/:parentId.
func (h *Handlers) ListJobsByParent(c *gin.Context) {
	jt, ok := jobTypeParam(c)
	if !ok {
		return
	}
	jobs, err := h.api.ListJobsByParent(c.Request.Context(), c.Param("tenant"), jt, c.Param("parentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"jobs": jobs})
}

// HealthCheck handles GET /healthz, mirroring the teacher's plain-200
// liveness handler (internal/handlers/healthcheck.go).
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
