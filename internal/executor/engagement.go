// Package executor runs the per-job engagement and post-publication
// algorithms (spec §4.6/§4.7) and dispatches a job payload to the right one
// (spec §4.8). Grounded on the staged, progress-reporting service methods in
// internal/application/service/ai_generation_service.go
// (ProcessOutlineGenerationJob): a plain function stepping through an
// ordered algorithm, calling a progress callback and a logger at each step.
package executor

import (
	"context"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// ProgressFunc is invoked after each planned action completes (spec §4.6
// step 8), with the action just executed and its index in the plan.
type ProgressFunc func(action entity.PlannedAction, index int)

// EngagementOptions configures one EngagementExecutor run beyond the plan
// itself.
type EngagementOptions struct {
	DryRun      bool
	StopOnError bool
	Feed        []entity.FeedItem // pre-fetched feed; fetched from client if nil
	OnProgress  ProgressFunc
}

// EngagementExecutor runs a deterministic EngagementPlan against an
// authenticated SocialClient (spec §4.6).
type EngagementExecutor struct {
	client service.SocialClient
	clock  service.Clock
	log    service.Logger
}

// NewEngagementExecutor returns an executor bound to client.
func NewEngagementExecutor(client service.SocialClient, clock service.Clock, log service.Logger) *EngagementExecutor {
	return &EngagementExecutor{client: client, clock: clock, log: log}
}

// Run executes plan in order, returning an EngagementReport with one result
// per planned action.
func (e *EngagementExecutor) Run(ctx context.Context, plan entity.EngagementPlan, opts EngagementOptions) (entity.EngagementReport, error) {
	feed := opts.Feed
	if feed == nil {
		n := len(plan.Actions)
		want := n * 2
		if want < 50 {
			want = 50
		}
		var err error
		feed, err = e.fetchFeed(ctx, want)
		if err != nil {
			return entity.EngagementReport{}, domainerrors.Upstream(err)
		}
	}

	report := entity.EngagementReport{}
	cursor := 0

	for i := range plan.Actions {
		a := plan.Actions[i]

		if err := e.clock.Sleep(ctx, secToDuration(a.DelaySec)); err != nil {
			return report, domainerrors.Cancelled()
		}

		cursor += a.Skip
		if cursor >= len(feed) {
			cursor = len(feed) - 1
			e.log.Warn("engagement: cursor out of range, clamped to last index", "index", cursor)
		}
		if cursor < 0 {
			cursor = 0
		}

		res, execErr := e.execute(ctx, feed, &cursor, a, opts.DryRun)
		if execErr != nil {
			report.Results = append(report.Results, entity.ActionResult{Success: false, Action: a, Error: execErr.Error()})
			if opts.StopOnError {
				break
			}
			if opts.OnProgress != nil {
				opts.OnProgress(a, i)
			}
			continue
		}

		a.Executed = true
		res.Action = a
		res.Success = true
		report.Results = append(report.Results, res)

		if opts.OnProgress != nil {
			opts.OnProgress(a, i)
		}
	}

	return report, nil
}

func (e *EngagementExecutor) execute(ctx context.Context, feed []entity.FeedItem, cursor *int, a entity.PlannedAction, dryRun bool) (entity.ActionResult, error) {
	if len(feed) == 0 || *cursor >= len(feed) {
		e.log.Warn("engagement: feed item missing at cursor, skipping")
		return entity.ActionResult{}, nil
	}

	item := feed[*cursor]
	if item.Malformed || item.URI == "" {
		e.log.Warn("engagement: malformed feed item, skipping", "cursor", *cursor)
		*cursor++
		return entity.ActionResult{}, nil
	}

	if dryRun {
		e.log.Info("engagement: dry-run, would perform action", "type", a.Type, "uri", item.URI)
	} else {
		var err error
		switch a.Type {
		case valueobject.ActionLike:
			err = e.client.Like(ctx, item.URI, item.CID)
		case valueobject.ActionRepost:
			err = e.client.Repost(ctx, item.URI, item.CID)
		}
		if err != nil {
			*cursor++
			return entity.ActionResult{}, domainerrors.Upstream(err)
		}
	}

	*cursor++
	return entity.ActionResult{PostURI: item.URI, PostCID: item.CID}, nil
}

func (e *EngagementExecutor) fetchFeed(ctx context.Context, limit int) ([]entity.FeedItem, error) {
	return e.client.GetTimeline(ctx, limit)
}
