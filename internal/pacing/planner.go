// Package pacing builds deterministic, seeded EngagementPlans (spec §4.5).
// Grounded on the teacher's pattern of injecting collaborators through the
// domain/service interfaces (here service.Random) rather than calling
// math/rand directly, so a plan is exactly reproducible in tests.
package pacing

import (
	"fmt"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// Planner produces an EngagementPlan for one of the two named strategies.
type Planner struct {
	rnd service.Random
}

// New returns a Planner drawing from rnd.
func New(rnd service.Random) *Planner {
	return &Planner{rnd: rnd}
}

// Plan builds an EngagementPlan for strategy against opts.
func (p *Planner) Plan(strategy valueobject.PacingStrategy, opts entity.EngagementOptions) (entity.EngagementPlan, error) {
	switch strategy {
	case valueobject.StrategyUniform:
		return p.planUniform(opts), nil
	case valueobject.StrategyHumanLike:
		return p.planHumanLike(opts), nil
	default:
		return entity.EngagementPlan{}, fmt.Errorf("pacing: unknown strategy %q", strategy)
	}
}

func (p *Planner) planUniform(opts entity.EngagementOptions) entity.EngagementPlan {
	n := opts.NumberOfActions
	likeCount := n * opts.LikePercentage / 100

	actions := make([]entity.PlannedAction, n)
	for i := 0; i < n; i++ {
		t := valueobject.ActionRepost
		if i < likeCount {
			t = valueobject.ActionLike
		}
		actions[i] = entity.PlannedAction{
			Type:     t,
			DelaySec: p.rnd.IntRange(opts.DelayRange[0], opts.DelayRange[1]),
			Skip:     p.rnd.IntRange(opts.SkipRange[0], opts.SkipRange[1]),
			Index:    i,
		}
	}
	return finalize(actions, likeCount, n-likeCount)
}

func (p *Planner) planHumanLike(opts entity.EngagementOptions) entity.EngagementPlan {
	n := opts.NumberOfActions
	sessions := n / 5
	if sessions < 1 {
		sessions = 1
	}

	sizes := partition(n, sessions)
	likeCount := n * opts.LikePercentage / 100
	repostCount := n - likeCount
	likeSizes := partition(likeCount, sessions)

	compressedMin := opts.DelayRange[0] / 2
	if compressedMin < 1 {
		compressedMin = 1
	}
	compressedMax := opts.DelayRange[1] / 3
	if compressedMax < 2 {
		compressedMax = 2
	}

	actions := make([]entity.PlannedAction, 0, n)
	idx := 0
	for s := 0; s < sessions; s++ {
		sessionSize := sizes[s]
		sessionLikes := likeSizes[s]
		for j := 0; j < sessionSize; j++ {
			skip := p.rnd.IntRange(opts.SkipRange[0], opts.SkipRange[1])
			if j == 0 {
				skip /= 2
			}
			delay := p.rnd.IntRange(compressedMin, compressedMax)
			if j == 0 && s > 0 {
				delay = p.rnd.IntRange(opts.DelayRange[1], 3*opts.DelayRange[1])
			}
			t := valueobject.ActionRepost
			if j < sessionLikes {
				t = valueobject.ActionLike
			}
			actions = append(actions, entity.PlannedAction{
				Type:     t,
				DelaySec: delay,
				Skip:     skip,
				Index:    idx,
			})
			idx++
		}
	}
	return finalize(actions, likeCount, repostCount)
}

// partition splits total into n non-negative parts, each part >= floor(total/n)
// with the remainder distributed to the first parts, guaranteeing every part
// is >=1 whenever total>=n (spec §4.5 "each session has >=1").
func partition(total, n int) []int {
	base := total / n
	rem := total % n
	parts := make([]int, n)
	for i := 0; i < n; i++ {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}

func finalize(actions []entity.PlannedAction, likeCount, repostCount int) entity.EngagementPlan {
	total := 0
	for _, a := range actions {
		total += a.DelaySec
	}
	return entity.EngagementPlan{
		Actions:     actions,
		LikeCount:   likeCount,
		RepostCount: repostCount,
		TotalTime:   total,
	}
}
