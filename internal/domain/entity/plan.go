package entity

import "github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"

// PlannedAction is one step of an EngagementPlan.
type PlannedAction struct {
	Type     valueobject.ActionType
	DelaySec int
	Skip     int
	Index    int
	Executed bool
}

// EngagementPlan is the ordered, deterministic output of a PacingPlanner.
type EngagementPlan struct {
	Actions []PlannedAction

	LikeCount   int
	RepostCount int
	TotalTime   int // seconds, sum of all DelaySec
}

// EngagementOptions parameterizes a PacingPlanner run (spec §4.5).
type EngagementOptions struct {
	NumberOfActions int
	DelayRange      [2]int
	SkipRange       [2]int
	LikePercentage  int
}

// DefaultEngagementOptions returns the spec-mandated defaults.
func DefaultEngagementOptions() EngagementOptions {
	return EngagementOptions{
		NumberOfActions: 10,
		DelayRange:      [2]int{5, 30},
		SkipRange:       [2]int{0, 4},
		LikePercentage:  70,
	}
}

// FeedItem is the small, executor-facing projection of a timeline post —
// the executor never sees raw lexicon types, only this.
type FeedItem struct {
	URI         string
	CID         string
	AuthorHandle string
	Text        string
	Malformed   bool
}

// ActionResult is one line of an EngagementExecutor report (spec §4.6).
type ActionResult struct {
	Success  bool
	Action   PlannedAction
	PostURI  string
	PostCID  string
	Error    string
}

// EngagementReport is the full ordered result of running a plan.
type EngagementReport struct {
	Results []ActionResult
}

// SuccessCount/ErrorCount/LikeCount/RepostCount satisfy the spec §8 invariants.
func (r EngagementReport) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

func (r EngagementReport) ErrorCount() int {
	return len(r.Results) - r.SuccessCount()
}

func (r EngagementReport) LikeCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success && res.Action.Type == valueobject.ActionLike {
			n++
		}
	}
	return n
}

func (r EngagementReport) RepostCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success && res.Action.Type == valueobject.ActionRepost {
			n++
		}
	}
	return n
}
