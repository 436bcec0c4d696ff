// Package social implements domain/service.SocialClient against the AT
// Protocol via github.com/bluesky-social/indigo's xrpc client and
// api/atproto + api/bsky lexicon bindings. Grounded on the Bluesky/AT
// Protocol dependency surface named in spec §9 ("Dynamic shape of the
// social client") and the only AT-Protocol Go SDK reference in the
// retrieval pack (other_examples/manifests/teranos-QNTX/go.mod); no adapter
// source for indigo was retrievable in the pack, so this is written
// directly against indigo's documented xrpc request/response shapes.
package social

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"golang.org/x/time/rate"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
)

// requestsPerSecond/requestBurst bound how fast one Client issues PDS calls.
// Each Client is pinned to one account (spec §1 "one SocialClient per
// account"), so this is a per-account throttle keeping engagement/post/chat
// execution inside PDS rate limits rather than a global one.
const (
	requestsPerSecond = 3
	requestBurst      = 5
)

// chatProxyDID is the well-known service DID the AT Protocol chat lexicon
// (chat.bsky.convo.*) must be proxied to; every chat call needs this header
// since the PDS does not itself host the chat namespace.
const chatProxyDID = "did:web:api.bsky.chat#bsky_chat"

// Client adapts one xrpc.Client (bound to one account's PDS host, proxy and
// user-agent) to service.SocialClient.
type Client struct {
	xc      *xrpc.Client
	did     string
	limiter *rate.Limiter
}

// Config pins a Client to one account's connection details (spec §3
// "AccountMetadata" endpoint/proxy/userAgent), threaded in by the
// Dispatcher's ClientFactory per job.
type Config struct {
	PDSHost   string
	Proxy     string // outbound proxy URL (spec §1 "Outbound proxy routing")
	UserAgent string
}

// NewClient returns a Client with no session yet established; AuthCoordinator
// calls Login/ResumeSession/RefreshSession to populate xc.Auth before any
// other method is used.
func NewClient(cfg Config) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Proxy != "" {
		transport, err := proxyTransport(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("social: configure proxy: %w", err)
		}
		httpClient.Transport = transport
	}

	xc := &xrpc.Client{
		Client: httpClient,
		Host:   cfg.PDSHost,
	}
	if cfg.UserAgent != "" {
		ua := cfg.UserAgent
		xc.UserAgent = &ua
	}
	return &Client{xc: xc, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)}, nil
}

// wait blocks until the per-account rate limiter admits the next call,
// honoring ctx cancellation while it waits.
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domainerrors.Cancelled()
	}
	return nil
}

func (c *Client) Login(ctx context.Context, handle, password string) (*service.Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := atproto.ServerCreateSession(ctx, c.xc, &atproto.ServerCreateSession_Input{
		Identifier: handle,
		Password:   password,
	})
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("login: %w", err))
	}
	c.applySession(out.Did, out.Handle, out.AccessJwt, out.RefreshJwt)
	return &service.Session{DID: out.Did, Handle: out.Handle, AccessToken: out.AccessJwt, RefreshToken: out.RefreshJwt}, nil
}

func (c *Client) ResumeSession(ctx context.Context, session entity.SessionData) (*service.Session, error) {
	if session.DID == "" {
		return nil, domainerrors.BadRequest("resume session: DID missing")
	}
	c.applySession(session.DID, session.Handle, session.AccessToken, session.RefreshToken)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := atproto.ServerGetSession(ctx, c.xc)
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("resume session: %w", err))
	}
	return &service.Session{
		DID: out.Did, Handle: out.Handle, Email: derefStr(out.Email),
		AccessToken: session.AccessToken, RefreshToken: session.RefreshToken,
	}, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*service.Session, error) {
	if refreshToken == "" {
		return nil, domainerrors.BadRequest("refresh session: refresh token missing")
	}
	// The refresh endpoint authenticates with the refresh token itself, not
	// the access token, so Auth is swapped just for this call.
	c.xc.Auth = &xrpc.AuthInfo{AccessJwt: refreshToken}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := atproto.ServerRefreshSession(ctx, c.xc)
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("refresh session: %w", err))
	}
	c.applySession(out.Did, out.Handle, out.AccessJwt, out.RefreshJwt)
	return &service.Session{DID: out.Did, Handle: out.Handle, AccessToken: out.AccessJwt, RefreshToken: out.RefreshJwt}, nil
}

func (c *Client) CreatePost(ctx context.Context, text string, embed *service.BlobRef) (*service.PostRef, error) {
	post := &bsky.FeedPost{
		Text:      text,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	if embed != nil {
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				Images: []*bsky.EmbedImages_Image{{
					Image: &lexutil.LexBlob{Ref: lexutil.LexLink{}, MimeType: embed.MimeType, Size: int64(embed.Size)},
					Alt:   "",
				}},
			},
		}
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := atproto.RepoCreateRecord(ctx, c.xc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("create post: %w", err))
	}
	return &service.PostRef{URI: out.Uri, CID: out.Cid}, nil
}

func (c *Client) Like(ctx context.Context, uri, cid string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := atproto.RepoCreateRecord(ctx, c.xc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.like",
		Repo:       c.did,
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedLike{
			Subject:   &atproto.RepoStrongRef{Uri: uri, Cid: cid},
			CreatedAt: time.Now().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return domainerrors.Upstream(fmt.Errorf("like %s: %w", uri, err))
	}
	return nil
}

func (c *Client) Repost(ctx context.Context, uri, cid string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := atproto.RepoCreateRecord(ctx, c.xc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.repost",
		Repo:       c.did,
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedRepost{
			Subject:   &atproto.RepoStrongRef{Uri: uri, Cid: cid},
			CreatedAt: time.Now().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return domainerrors.Upstream(fmt.Errorf("repost %s: %w", uri, err))
	}
	return nil
}

func (c *Client) Follow(ctx context.Context, did string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := atproto.RepoCreateRecord(ctx, c.xc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.graph.follow",
		Repo:       c.did,
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.GraphFollow{
			Subject:   did,
			CreatedAt: time.Now().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return domainerrors.Upstream(fmt.Errorf("follow %s: %w", did, err))
	}
	return nil
}

func (c *Client) Reply(ctx context.Context, parentURI, parentCID, text string) (*service.PostRef, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ref := &atproto.RepoStrongRef{Uri: parentURI, Cid: parentCID}
	out, err := atproto.RepoCreateRecord(ctx, c.xc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.did,
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedPost{
			Text:      text,
			CreatedAt: time.Now().Format(time.RFC3339),
			Reply:     &bsky.FeedPost_ReplyRef{Root: ref, Parent: ref},
		}},
	})
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("reply: %w", err))
	}
	return &service.PostRef{URI: out.Uri, CID: out.Cid}, nil
}

func (c *Client) GetTimeline(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.FeedGetTimeline(ctx, c.xc, "reverse-chronological", "", int64(limit))
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("get timeline: %w", err))
	}
	return feedItemsFromView(out.Feed), nil
}

func (c *Client) GetHotFeed(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	// "what's hot" is a Bluesky-curated feed generator, addressed by its
	// well-known AT-URI rather than the plain timeline endpoint.
	const hotFeedURI = "at://did:plc:z72i7hdynmk6r22z27h6tvur/app.bsky.feed.generator/whats-hot"
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.FeedGetFeed(ctx, c.xc, "", hotFeedURI, int64(limit))
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("get hot feed: %w", err))
	}
	return feedItemsFromView(out.Feed), nil
}

func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (*service.BlobRef, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := atproto.RepoUploadBlob(ctx, c.xc, bytes.NewReader(data))
	if err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("upload blob: %w", err))
	}
	return &service.BlobRef{Ref: out.Blob.Ref.String(), MimeType: out.Blob.MimeType, Size: int(out.Blob.Size)}, nil
}

func (c *Client) UpsertProfile(ctx context.Context, pinnedPost *service.PostRef) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	existing, err := bsky.ActorGetProfile(ctx, c.xc, c.did)
	profile := &bsky.ActorProfile{}
	if err == nil && existing != nil {
		profile.DisplayName = existing.DisplayName
		profile.Description = existing.Description
		profile.Avatar = existing.Avatar
	}
	if pinnedPost != nil {
		profile.PinnedPost = &atproto.RepoStrongRef{Uri: pinnedPost.URI, Cid: pinnedPost.CID}
	}

	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = atproto.RepoPutRecord(ctx, c.xc, &atproto.RepoPutRecord_Input{
		Collection: "app.bsky.actor.profile",
		Repo:       c.did,
		Rkey:       "self",
		Record:     &lexutil.LexiconTypeDecoder{Val: profile},
	})
	if err != nil {
		return domainerrors.Upstream(fmt.Errorf("upsert profile: %w", err))
	}
	return nil
}

// chatConvo/chatMessage mirror just the fields this adapter reads off the
// chat.bsky.convo.* lexicon responses.
type chatConvo struct {
	ID      string `json:"id"`
	Members []struct {
		DID string `json:"did"`
	} `json:"members"`
}

func (c *Client) SendDM(ctx context.Context, conversationID, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	var out map[string]any
	body := map[string]any{"convoId": conversationID, "message": map[string]string{"text": text}}
	if err := c.withChatProxy().Do(ctx, xrpc.Procedure, "application/json", "chat.bsky.convo.sendMessage", nil, body, &out); err != nil {
		return domainerrors.Upstream(fmt.Errorf("send dm: %w", err))
	}
	return nil
}

func (c *Client) StartConversation(ctx context.Context, recipientHandle string) (string, error) {
	did, err := c.resolveHandle(ctx, recipientHandle)
	if err != nil {
		return "", err
	}

	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var out struct {
		Convo chatConvo `json:"convo"`
	}
	params := map[string]any{"members": []string{c.did, did}}
	if err := c.withChatProxy().Do(ctx, xrpc.Procedure, "", "chat.bsky.convo.getConvoForMembers", params, nil, &out); err != nil {
		return "", domainerrors.Upstream(fmt.Errorf("start conversation with %s: %w", recipientHandle, err))
	}
	return out.Convo.ID, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		Convos []chatConvo `json:"convos"`
	}
	if err := c.withChatProxy().Do(ctx, xrpc.Query, "", "chat.bsky.convo.listConvos", nil, nil, &out); err != nil {
		return nil, domainerrors.Upstream(fmt.Errorf("list conversations: %w", err))
	}
	ids := make([]string, 0, len(out.Convos))
	for _, convo := range out.Convos {
		ids = append(ids, convo.ID)
	}
	return ids, nil
}

func (c *Client) resolveHandle(ctx context.Context, handle string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := atproto.IdentityResolveHandle(ctx, c.xc, handle)
	if err != nil {
		return "", domainerrors.Upstream(fmt.Errorf("resolve handle %s: %w", handle, err))
	}
	return out.Did, nil
}

// withChatProxy returns a shallow copy of xc with the chat service-proxy
// header set, leaving the shared client's Auth/Host untouched.
func (c *Client) withChatProxy() *xrpc.Client {
	cp := *c.xc
	headers := map[string]string{"atproto-proxy": chatProxyDID}
	for k, v := range c.xc.Headers {
		headers[k] = v
	}
	cp.Headers = headers
	return &cp
}

func (c *Client) applySession(did, handle, accessJwt, refreshJwt string) {
	c.did = did
	c.xc.Auth = &xrpc.AuthInfo{Did: did, Handle: handle, AccessJwt: accessJwt, RefreshJwt: refreshJwt}
}

func feedItemsFromView(feed []*bsky.FeedDefs_FeedViewPost) []entity.FeedItem {
	items := make([]entity.FeedItem, 0, len(feed))
	for _, view := range feed {
		if view == nil || view.Post == nil {
			items = append(items, entity.FeedItem{Malformed: true})
			continue
		}
		item := entity.FeedItem{URI: view.Post.Uri, CID: view.Post.Cid}
		if view.Post.Author != nil {
			item.AuthorHandle = view.Post.Author.Handle
		}
		if post, ok := view.Post.Record.Val.(*bsky.FeedPost); ok {
			item.Text = post.Text
		} else {
			item.Malformed = true
		}
		items = append(items, item)
	}
	return items
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ service.SocialClient = (*Client)(nil)
