package executor

import (
	"context"
	"testing"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// realtimeClock satisfies service.Clock; tests keep every DelaySec at 0 so
// it never actually blocks.
type realtimeClock struct{}

func (realtimeClock) Now() time.Time { return time.Now() }
func (realtimeClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeSocialClient struct {
	timeline []entity.FeedItem
	liked    []string
	reposted []string
	posted   []string
}

func (f *fakeSocialClient) Login(ctx context.Context, handle, password string) (*service.Session, error) {
	return nil, nil
}
func (f *fakeSocialClient) ResumeSession(ctx context.Context, session entity.SessionData) (*service.Session, error) {
	return nil, nil
}
func (f *fakeSocialClient) RefreshSession(ctx context.Context, refreshToken string) (*service.Session, error) {
	return nil, nil
}
func (f *fakeSocialClient) CreatePost(ctx context.Context, text string, embed *service.BlobRef) (*service.PostRef, error) {
	f.posted = append(f.posted, text)
	return &service.PostRef{URI: "at://post", CID: "cid"}, nil
}
func (f *fakeSocialClient) Like(ctx context.Context, uri, cid string) error {
	f.liked = append(f.liked, uri)
	return nil
}
func (f *fakeSocialClient) Repost(ctx context.Context, uri, cid string) error {
	f.reposted = append(f.reposted, uri)
	return nil
}
func (f *fakeSocialClient) Follow(ctx context.Context, did string) error { return nil }
func (f *fakeSocialClient) Reply(ctx context.Context, parentURI, parentCID, text string) (*service.PostRef, error) {
	return nil, nil
}
func (f *fakeSocialClient) GetTimeline(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	return f.timeline, nil
}
func (f *fakeSocialClient) GetHotFeed(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	return f.timeline, nil
}
func (f *fakeSocialClient) UploadBlob(ctx context.Context, data []byte, mimeType string) (*service.BlobRef, error) {
	return &service.BlobRef{Ref: "blob1", MimeType: mimeType, Size: len(data)}, nil
}
func (f *fakeSocialClient) UpsertProfile(ctx context.Context, pinnedPost *service.PostRef) error {
	return nil
}
func (f *fakeSocialClient) SendDM(ctx context.Context, conversationID, text string) error { return nil }
func (f *fakeSocialClient) StartConversation(ctx context.Context, recipientHandle string) (string, error) {
	return "convo1", nil
}
func (f *fakeSocialClient) ListConversations(ctx context.Context) ([]string, error) { return nil, nil }

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)     {}
func (nopLogger) Info(msg string, args ...any)      {}
func (nopLogger) Warn(msg string, args ...any)      {}
func (nopLogger) Error(msg string, args ...any)     {}
func (n nopLogger) With(args ...any) service.Logger { return n }

func makeFeed(n int) []entity.FeedItem {
	feed := make([]entity.FeedItem, n)
	for i := range feed {
		feed[i] = entity.FeedItem{URI: "uri", CID: "cid"}
	}
	return feed
}

func TestEngagementExecutorDryRun(t *testing.T) {
	feed := makeFeed(50)
	client := &fakeSocialClient{timeline: feed}
	exec := NewEngagementExecutor(client, realtimeClock{}, nopLogger{})

	plan := entity.EngagementPlan{
		Actions: []entity.PlannedAction{
			{Type: valueobject.ActionLike, DelaySec: 0, Skip: 0, Index: 0},
			{Type: valueobject.ActionRepost, DelaySec: 0, Skip: 1, Index: 1},
		},
		LikeCount: 1, RepostCount: 1,
	}

	report, err := exec.Run(context.Background(), plan, EngagementOptions{DryRun: true, Feed: feed})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SuccessCount() != 2 {
		t.Fatalf("SuccessCount = %d, want 2", report.SuccessCount())
	}
	if len(client.liked) != 0 || len(client.reposted) != 0 {
		t.Fatalf("dry run should not call like/repost, got liked=%v reposted=%v", client.liked, client.reposted)
	}
}

func TestEngagementExecutorLiveCallsUpstream(t *testing.T) {
	feed := makeFeed(50)
	client := &fakeSocialClient{timeline: feed}
	exec := NewEngagementExecutor(client, realtimeClock{}, nopLogger{})

	plan := entity.EngagementPlan{
		Actions: []entity.PlannedAction{
			{Type: valueobject.ActionLike, DelaySec: 0, Skip: 0, Index: 0},
		},
		LikeCount: 1,
	}

	_, err := exec.Run(context.Background(), plan, EngagementOptions{Feed: feed})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.liked) != 1 {
		t.Fatalf("expected one like call, got %d", len(client.liked))
	}
}

func TestEngagementExecutorClampsOutOfRangeCursor(t *testing.T) {
	feed := makeFeed(2)
	client := &fakeSocialClient{timeline: feed}
	exec := NewEngagementExecutor(client, realtimeClock{}, nopLogger{})

	plan := entity.EngagementPlan{
		Actions: []entity.PlannedAction{
			{Type: valueobject.ActionLike, DelaySec: 0, Skip: 100, Index: 0},
		},
		LikeCount: 1,
	}

	report, err := exec.Run(context.Background(), plan, EngagementOptions{Feed: feed})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SuccessCount() != 1 {
		t.Fatalf("expected clamped cursor to still produce a success, got %+v", report)
	}
}
