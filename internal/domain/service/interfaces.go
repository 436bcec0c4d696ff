// Package service declares the narrow capability interfaces the domain and
// execution layers depend on, directly modeled on the teacher's
// internal/domain/service/interfaces.go (IdentityProvider, PaymentProvider,
// Logger) — a concrete SDK never leaks past one of these.
package service

import (
	"context"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
)

// Logger abstracts structured logging, identical in shape to the teacher's
// domain/service.Logger so every executor/coordinator can be written once
// against this interface regardless of the concrete backend.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts monotonic time so pacing/lease code is deterministically
// testable (spec §2 "Clock & Random").
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case — the one cancellable suspension point pacing code uses.
	Sleep(ctx context.Context, d time.Duration) error
}

// Random abstracts uniform integer draws so PacingPlanner is seed-replayable
// in tests (spec §4.5 "Determinism").
type Random interface {
	// IntRange returns a uniform draw in [min, max] inclusive.
	IntRange(min, max int) int
}

// SocialClient is the capability surface exposed by an authenticated social
// network client (spec §9 "Dynamic shape of the social client"). Only the
// operations the core actually calls are declared.
type SocialClient interface {
	// Login performs a full password login.
	Login(ctx context.Context, handle, password string) (*Session, error)
	// ResumeSession treats an existing session as valid and revalidates it.
	ResumeSession(ctx context.Context, session entity.SessionData) (*Session, error)
	// RefreshSession rotates tokens using a refresh token.
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)

	CreatePost(ctx context.Context, text string, embed *BlobRef) (*PostRef, error)
	Like(ctx context.Context, uri, cid string) error
	Repost(ctx context.Context, uri, cid string) error
	Follow(ctx context.Context, did string) error
	Reply(ctx context.Context, parentURI, parentCID, text string) (*PostRef, error)

	GetTimeline(ctx context.Context, limit int) ([]entity.FeedItem, error)
	GetHotFeed(ctx context.Context, limit int) ([]entity.FeedItem, error)

	UploadBlob(ctx context.Context, data []byte, mimeType string) (*BlobRef, error)
	UpsertProfile(ctx context.Context, pinnedPost *PostRef) error

	SendDM(ctx context.Context, conversationID, text string) error
	StartConversation(ctx context.Context, recipientHandle string) (string, error)
	ListConversations(ctx context.Context) ([]string, error)
}

// Session is what a successful Login/Resume/Refresh returns.
type Session struct {
	DID          string
	Handle       string
	Email        string
	AccessToken  string
	RefreshToken string
}

// BlobRef is an opaque reference to an uploaded blob, returned by UploadBlob
// and consumed by CreatePost's embed parameter.
type BlobRef struct {
	Ref      string
	MimeType string
	Size     int
}

// PostRef identifies a created post for later like/repost/pin operations.
type PostRef struct {
	URI string
	CID string
}

// AccountStore is the opaque credential/account repository (spec §1).
type AccountStore interface {
	// GetAccountsByCategory returns every account metadata row tagged with
	// categoryID, used by Intake's enqueueByCategory fan-out.
	GetAccountsByCategory(ctx context.Context, tenantID, categoryID string) ([]entity.AccountMetadata, error)
	// GetAccount returns one account's metadata by id.
	GetAccount(ctx context.Context, accountID string) (*entity.AccountMetadata, error)
	// UpdateTokens writes back rotated credentials after a successful auth
	// attempt (spec §4.4). Races across concurrent jobs for the same account
	// are last-writer-wins by design (spec §5).
	UpdateTokens(ctx context.Context, accountID string, update entity.TokenUpdate) error
}
