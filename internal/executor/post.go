package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"golang.org/x/image/draw"
)

// maxBlobBytes is the safety cap on an uploaded image before downscaling
// (spec §4.7, "900 KiB").
const maxBlobBytes = 900 * 1024

// maxDownscaleWidth is the target max width when downscaling (spec §4.7).
const maxDownscaleWidth = 1280

// AuthRefresher re-invokes authentication mid-job when PostExecutor detects
// a lapsed session (spec §4.7 step 1). Implemented by the Dispatcher so
// executors never depend on the full auth.Coordinator type directly.
type AuthRefresher interface {
	Reauthenticate(ctx context.Context) error
	Authenticated() bool
}

// PostExecutor runs a mass-post batch against an authenticated SocialClient
// (spec §4.7).
type PostExecutor struct {
	client service.SocialClient
	auth   AuthRefresher
	clock  service.Clock
	rnd    service.Random
	log    service.Logger
	httpc  *http.Client
}

// NewPostExecutor returns an executor bound to client.
func NewPostExecutor(client service.SocialClient, auth AuthRefresher, clock service.Clock, rnd service.Random, log service.Logger) *PostExecutor {
	return &PostExecutor{client: client, auth: auth, clock: clock, rnd: rnd, log: log, httpc: &http.Client{Timeout: 30 * time.Second}}
}

// Run publishes opts.Posts in order (or reverse order, if requested),
// returning a PostReport with one result per item.
func (e *PostExecutor) Run(ctx context.Context, opts entity.PostOptions) (entity.PostReport, error) {
	items := opts.Posts
	if opts.ReverseOrder {
		items = reversed(items)
	}

	report := entity.PostReport{}
	pinned := false

	for i, item := range items {
		res := e.runOne(ctx, item, &pinned)
		report.Results = append(report.Results, res)

		if i < len(items)-1 {
			if err := e.clock.Sleep(ctx, secToDuration(e.rnd.IntRange(opts.DelayRange[0], opts.DelayRange[1]))); err != nil {
				return report, domainerrors.Cancelled()
			}
		}
	}

	return report, nil
}

func (e *PostExecutor) runOne(ctx context.Context, item entity.PostItem, pinned *bool) entity.PostResult {
	if !e.auth.Authenticated() {
		if err := e.auth.Reauthenticate(ctx); err != nil {
			return entity.PostResult{Error: domainerrors.AuthExhausted(err).Error()}
		}
	}

	text := item.Text
	if item.IncludeTimestamp {
		text = fmt.Sprintf("%s\n\n[%s]", text, time.Now().Format(time.RFC3339))
	}

	var ref *service.PostRef
	var err error

	if item.ImageURL != "" {
		ref, err = e.postWithImage(ctx, text, item)
	} else {
		ref, err = e.client.CreatePost(ctx, text, nil)
	}
	if err != nil {
		return entity.PostResult{Error: err.Error()}
	}

	res := entity.PostResult{Success: true, URI: ref.URI, CID: ref.CID}

	if item.Pin && !*pinned {
		if err := e.client.UpsertProfile(ctx, ref); err != nil {
			e.log.Warn("post: pin update failed", "uri", ref.URI, "error", err)
		} else {
			*pinned = true
			res.Pinned = true
		}
	}

	return res
}

func (e *PostExecutor) postWithImage(ctx context.Context, text string, item entity.PostItem) (*service.PostRef, error) {
	data, mimeType, err := e.resolveImage(ctx, item.ImageURL)
	if err != nil {
		return nil, err
	}

	if len(data) > maxBlobBytes {
		data, mimeType, err = downscale(data, maxDownscaleWidth)
		if err != nil {
			return nil, domainerrors.BlobTooLarge("image exceeds %d bytes and could not be downscaled: %v", maxBlobBytes, err)
		}
		if len(data) > maxBlobBytes {
			return nil, domainerrors.BlobTooLarge("image still exceeds %d bytes after downscaling", maxBlobBytes)
		}
	}

	blob, err := e.client.UploadBlob(ctx, data, mimeType)
	if err != nil {
		return nil, domainerrors.Upstream(err)
	}

	ref, err := e.client.CreatePost(ctx, text, &service.BlobRef{Ref: blob.Ref, MimeType: blob.MimeType, Size: blob.Size})
	if err != nil {
		return nil, domainerrors.Upstream(err)
	}
	return ref, nil
}

func (e *PostExecutor) resolveImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if strings.HasPrefix(imageURL, "data:") {
		return decodeDataURI(imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", imageURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, nil
}

func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	header, payload := parts[0], parts[1]
	mimeType := strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI: %w", err)
	}
	return data, mimeType, nil
}

// downscale re-encodes data as a JPEG no wider than maxWidth, quality 80
// (spec §4.7). It returns an error rather than truncating when the image
// cannot be decoded — truncation silently corrupts the upload and is the
// behavior §9 flags as a bug not to reproduce.
func downscale(data []byte, maxWidth int) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func reversed(items []entity.PostItem) []entity.PostItem {
	out := make([]entity.PostItem, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}
