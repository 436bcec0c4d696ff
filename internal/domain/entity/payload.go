package entity

import "github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"

// EngagementPayload is the engagement job's request body (spec §6).
type EngagementPayload struct {
	SessionData       SessionData
	EngagementOptions EngagementOptions
	StrategyType      valueobject.PacingStrategy
	AccountMetadata   AccountMetadata
}

// MassPostPayload is the massPost job's request body (spec §6).
type MassPostPayload struct {
	SessionData     SessionData
	PostOptions     PostOptions
	AccountMetadata AccountMetadata
}

// ChatPayload is the chat job's request body (spec §6).
type ChatPayload struct {
	SessionData     SessionData
	Messages        []string
	Recipients      []string
	AccountMetadata AccountMetadata
}

// ChatResult is the chat job's success object.
type ChatResult struct {
	Sent  int
	Total int
	Error string
}
