// Package http is the thin, transport-only edge around the core (spec §1
// "HTTP transport ... treated as thin edges around the core"): JSON request
// parsing into domain payloads, a gin router exposing the Intake command
// surface (spec §6), and a websocket upgrade for subscribe/monitorJob/
// monitorGroup/unmonitor. Grounded on the teacher's gin handler package
// (internal/handlers/*.go) for request/response shape and
// internal/server/router.go for route grouping.
package http

import (
	"encoding/json"
	"fmt"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// sessionDataDTO mirrors entity.SessionData with the camelCase field names
// spec §6 uses on the wire.
type sessionDataDTO struct {
	DID          string `json:"did"`
	Handle       string `json:"handle"`
	Email        string `json:"email,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (d sessionDataDTO) toEntity() entity.SessionData {
	return entity.SessionData{DID: d.DID, Handle: d.Handle, Email: d.Email, AccessToken: d.AccessToken, RefreshToken: d.RefreshToken}
}

// accountMetadataDTO mirrors entity.AccountMetadata.
type accountMetadataDTO struct {
	AccountID string `json:"accountId"`
	Password  string `json:"password,omitempty"`
	Proxy     string `json:"proxy,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

func (d accountMetadataDTO) toEntity() entity.AccountMetadata {
	return entity.AccountMetadata{AccountID: d.AccountID, Password: d.Password, Proxy: d.Proxy, UserAgent: d.UserAgent, Endpoint: d.Endpoint}
}

// engagementOptionsDTO mirrors entity.EngagementOptions, defaulting every
// unset field to spec §4.5's {10, [5,30], [0,4], 70}.
type engagementOptionsDTO struct {
	NumberOfActions int    `json:"numberOfActions"`
	DelayRange      [2]int `json:"delayRange"`
	SkipRange       [2]int `json:"skipRange"`
	LikePercentage  int    `json:"likePercentage"`
}

func (d *engagementOptionsDTO) toEntity() entity.EngagementOptions {
	opts := entity.DefaultEngagementOptions()
	if d == nil {
		return opts
	}
	if d.NumberOfActions > 0 {
		opts.NumberOfActions = d.NumberOfActions
	}
	if d.DelayRange != [2]int{} {
		opts.DelayRange = d.DelayRange
	}
	if d.SkipRange != [2]int{} {
		opts.SkipRange = d.SkipRange
	}
	if d.LikePercentage > 0 {
		opts.LikePercentage = d.LikePercentage
	}
	return opts
}

// engagementRequest is the engagement job payload (spec §6).
type engagementRequest struct {
	SessionData       sessionDataDTO        `json:"sessionData"`
	EngagementOptions *engagementOptionsDTO `json:"engagementOptions,omitempty"`
	StrategyType      string                `json:"strategyType"`
	AccountMetadata   accountMetadataDTO    `json:"accountMetadata,omitempty"`
}

func (r engagementRequest) toPayload() (entity.EngagementPayload, error) {
	strategy := valueobject.PacingStrategy(r.StrategyType)
	if strategy != valueobject.StrategyUniform && strategy != valueobject.StrategyHumanLike {
		return entity.EngagementPayload{}, fmt.Errorf("unknown strategyType %q", r.StrategyType)
	}
	return entity.EngagementPayload{
		SessionData:       r.SessionData.toEntity(),
		EngagementOptions: r.EngagementOptions.toEntity(),
		StrategyType:      strategy,
		AccountMetadata:   r.AccountMetadata.toEntity(),
	}, nil
}

// postItemDTO mirrors entity.PostItem.
type postItemDTO struct {
	Text             string `json:"text"`
	ImageURL         string `json:"imageUrl,omitempty"`
	Pin              bool   `json:"pin,omitempty"`
	Alt              string `json:"alt,omitempty"`
	IncludeTimestamp bool   `json:"includeTimestamp,omitempty"`
}

// postOptionsDTO mirrors entity.PostOptions.
type postOptionsDTO struct {
	Posts        []postItemDTO `json:"posts"`
	DelayRange   *[2]int       `json:"delayRange,omitempty"`
	ReverseOrder bool          `json:"reverseOrder,omitempty"`
}

func (d postOptionsDTO) toEntity() entity.PostOptions {
	delayRange := [2]int{5, 30}
	if d.DelayRange != nil {
		delayRange = *d.DelayRange
	}
	items := make([]entity.PostItem, 0, len(d.Posts))
	for _, p := range d.Posts {
		items = append(items, entity.PostItem{
			Text: p.Text, ImageURL: p.ImageURL, Pin: p.Pin, Alt: p.Alt, IncludeTimestamp: p.IncludeTimestamp,
		})
	}
	return entity.PostOptions{Posts: items, DelayRange: delayRange, ReverseOrder: d.ReverseOrder}
}

// massPostRequest is the massPost job payload (spec §6).
type massPostRequest struct {
	SessionData     sessionDataDTO     `json:"sessionData"`
	PostOptions     postOptionsDTO     `json:"postOptions"`
	AccountMetadata accountMetadataDTO `json:"accountMetadata,omitempty"`
}

func (r massPostRequest) toPayload() entity.MassPostPayload {
	return entity.MassPostPayload{
		SessionData:     r.SessionData.toEntity(),
		PostOptions:     r.PostOptions.toEntity(),
		AccountMetadata: r.AccountMetadata.toEntity(),
	}
}

// stringOrSlice decodes spec §6's `messages:string|[string]` union into a
// single []string, wrapping a bare string as a one-element slice.
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("messages: expected string or []string: %w", err)
	}
	*s = []string{one}
	return nil
}

// chatRequest is the chat job payload (spec §6).
type chatRequest struct {
	SessionData     sessionDataDTO     `json:"sessionData"`
	Messages        stringOrSlice      `json:"messages"`
	Recipients      []string           `json:"recipients"`
	AccountMetadata accountMetadataDTO `json:"accountMetadata,omitempty"`
}

func (r chatRequest) toPayload() (entity.ChatPayload, error) {
	if len(r.Messages) == 0 {
		return entity.ChatPayload{}, fmt.Errorf("messages must not be empty")
	}
	if len(r.Recipients) == 0 {
		return entity.ChatPayload{}, fmt.Errorf("recipients must not be empty")
	}
	return entity.ChatPayload{
		SessionData:     r.SessionData.toEntity(),
		Messages:        []string(r.Messages),
		Recipients:      r.Recipients,
		AccountMetadata: r.AccountMetadata.toEntity(),
	}, nil
}

// decodePayload parses raw JSON into the concrete payload type for jobType,
// returning it as `any` ready for intake.API.Enqueue/EnqueueBulk.
func decodePayload(jobType valueobject.JobType, raw json.RawMessage) (any, error) {
	switch jobType {
	case valueobject.JobTypeEngagement:
		var req engagementRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return req.toPayload()
	case valueobject.JobTypeMassPost:
		var req massPostRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return req.toPayload(), nil
	case valueobject.JobTypeChat:
		var req chatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return req.toPayload()
	default:
		return nil, fmt.Errorf("unknown jobType %q", jobType)
	}
}
