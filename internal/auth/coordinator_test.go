package auth

import (
	"context"
	"errors"
	"testing"

	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
)

type fakeClient struct {
	refreshErr error
	resumeErr  error
	loginErr   error
	refreshed  service.Session
	resumed    service.Session
	loggedIn   service.Session
}

func (f *fakeClient) Login(ctx context.Context, handle, password string) (*service.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	s := f.loggedIn
	return &s, nil
}
func (f *fakeClient) ResumeSession(ctx context.Context, session entity.SessionData) (*service.Session, error) {
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	s := f.resumed
	return &s, nil
}
func (f *fakeClient) RefreshSession(ctx context.Context, refreshToken string) (*service.Session, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	s := f.refreshed
	return &s, nil
}
func (f *fakeClient) CreatePost(ctx context.Context, text string, embed *service.BlobRef) (*service.PostRef, error) {
	return nil, nil
}
func (f *fakeClient) Like(ctx context.Context, uri, cid string) error   { return nil }
func (f *fakeClient) Repost(ctx context.Context, uri, cid string) error { return nil }
func (f *fakeClient) Follow(ctx context.Context, did string) error      { return nil }
func (f *fakeClient) Reply(ctx context.Context, parentURI, parentCID, text string) (*service.PostRef, error) {
	return nil, nil
}
func (f *fakeClient) GetTimeline(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	return nil, nil
}
func (f *fakeClient) GetHotFeed(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	return nil, nil
}
func (f *fakeClient) UploadBlob(ctx context.Context, data []byte, mimeType string) (*service.BlobRef, error) {
	return nil, nil
}
func (f *fakeClient) UpsertProfile(ctx context.Context, pinnedPost *service.PostRef) error { return nil }
func (f *fakeClient) SendDM(ctx context.Context, conversationID, text string) error        { return nil }
func (f *fakeClient) StartConversation(ctx context.Context, recipientHandle string) (string, error) {
	return "", nil
}
func (f *fakeClient) ListConversations(ctx context.Context) ([]string, error) { return nil, nil }

type fakeStore struct {
	updates []entity.TokenUpdate
	err     error
}

func (f *fakeStore) GetAccountsByCategory(ctx context.Context, tenantID, categoryID string) ([]entity.AccountMetadata, error) {
	return nil, nil
}
func (f *fakeStore) GetAccount(ctx context.Context, accountID string) (*entity.AccountMetadata, error) {
	return nil, nil
}
func (f *fakeStore) UpdateTokens(ctx context.Context, accountID string, update entity.TokenUpdate) error {
	f.updates = append(f.updates, update)
	return f.err
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)      {}
func (nopLogger) Info(msg string, args ...any)       {}
func (nopLogger) Warn(msg string, args ...any)       {}
func (nopLogger) Error(msg string, args ...any)      {}
func (n nopLogger) With(args ...any) service.Logger  { return n }

func TestAuthenticateRefreshSucceeds(t *testing.T) {
	client := &fakeClient{refreshed: service.Session{AccessToken: "a2", RefreshToken: "r2", DID: "did:plc:x"}}
	store := &fakeStore{}
	c := New(client, store, nopLogger{})

	res, err := c.Authenticate(context.Background(), "acct1", entity.SessionData{RefreshToken: "r1"}, entity.AccountMetadata{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Session.AccessToken != "a2" || res.Session.DID != "did:plc:x" {
		t.Fatalf("unexpected session: %+v", res.Session)
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected 1 token writeback, got %d", len(store.updates))
	}
}

func TestAuthenticateFallsBackToResume(t *testing.T) {
	client := &fakeClient{
		refreshErr: errors.New("refresh token expired"),
		resumed:    service.Session{AccessToken: "a3", RefreshToken: "r3"},
	}
	store := &fakeStore{}
	c := New(client, store, nopLogger{})

	res, err := c.Authenticate(context.Background(), "acct1", entity.SessionData{RefreshToken: "r1", DID: "did:plc:y"}, entity.AccountMetadata{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Session.AccessToken != "a3" {
		t.Fatalf("unexpected session: %+v", res.Session)
	}
}

func TestAuthenticateResumeFailsWithoutDID(t *testing.T) {
	client := &fakeClient{refreshErr: errors.New("no refresh")}
	store := &fakeStore{}
	c := New(client, store, nopLogger{})

	// No refresh token, no DID, no password: every method must fail and the
	// coordinator must not fabricate a DID to let Resume through.
	_, err := c.Authenticate(context.Background(), "acct1", entity.SessionData{}, entity.AccountMetadata{})
	if domainerrors.CodeOf(err) != domainerrors.CodeAuthExhausted {
		t.Fatalf("expected AuthExhausted, got %v", err)
	}
}

func TestAuthenticateFallsBackToLogin(t *testing.T) {
	client := &fakeClient{
		refreshErr: nil,
		resumeErr:  errors.New("resume rejected"),
		loggedIn:   service.Session{DID: "did:plc:z", Handle: "alice.bsky.social", AccessToken: "a4", RefreshToken: "r4"},
	}
	store := &fakeStore{}
	c := New(client, store, nopLogger{})

	// RefreshToken empty skips Method 1; DID present so Resume is attempted
	// and fails via resumeErr; Method 3 (password present) succeeds.
	res, err := c.Authenticate(context.Background(), "acct1", entity.SessionData{DID: "did:plc:stale"}, entity.AccountMetadata{Password: "hunter2"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Session.DID != "did:plc:z" {
		t.Fatalf("unexpected session: %+v", res.Session)
	}
}

func TestAuthenticateAllFail(t *testing.T) {
	client := &fakeClient{
		refreshErr: errors.New("bad refresh"),
		resumeErr:  errors.New("bad resume"),
		loginErr:   errors.New("bad login"),
	}
	store := &fakeStore{}
	c := New(client, store, nopLogger{})

	_, err := c.Authenticate(context.Background(), "acct1", entity.SessionData{RefreshToken: "r1", DID: "did:plc:x"}, entity.AccountMetadata{Password: "hunter2"})
	if domainerrors.CodeOf(err) != domainerrors.CodeAuthExhausted {
		t.Fatalf("expected AuthExhausted, got %v", err)
	}
}
