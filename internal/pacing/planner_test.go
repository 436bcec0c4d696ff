package pacing

import (
	"testing"

	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// sequenceRandom replays a fixed sequence of draws, each clamped to
// [min, max] (and min once the sequence is exhausted), so a test can assert
// on exact expected output the way a seeded generator would.
type sequenceRandom struct {
	vals []int
	i    int
}

func (s *sequenceRandom) IntRange(min, max int) int {
	if s.i >= len(s.vals) {
		return min
	}
	v := s.vals[s.i]
	s.i++
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// midpointRandom always returns the midpoint of [min,max], useful for
// asserting structural properties (counts, lengths) without caring about
// the exact delay/skip drawn.
type midpointRandom struct{}

func (midpointRandom) IntRange(min, max int) int {
	return (min + max) / 2
}

func TestPlanUniform(t *testing.T) {
	p := New(midpointRandom{})
	opts := entity.EngagementOptions{
		NumberOfActions: 10,
		DelayRange:      [2]int{5, 30},
		SkipRange:       [2]int{0, 4},
		LikePercentage:  70,
	}
	plan, err := p.Plan(valueobject.StrategyUniform, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Actions) != 10 {
		t.Fatalf("len(Actions) = %d, want 10", len(plan.Actions))
	}
	if plan.LikeCount != 7 || plan.RepostCount != 3 {
		t.Fatalf("counts = %d/%d, want 7/3", plan.LikeCount, plan.RepostCount)
	}
	for i, a := range plan.Actions {
		wantType := valueobject.ActionRepost
		if i < 7 {
			wantType = valueobject.ActionLike
		}
		if a.Type != wantType {
			t.Errorf("action %d type = %s, want %s", i, a.Type, wantType)
		}
		if a.DelaySec < 5 || a.DelaySec > 30 {
			t.Errorf("action %d delay = %d, out of [5,30]", i, a.DelaySec)
		}
		if a.Skip < 0 || a.Skip > 4 {
			t.Errorf("action %d skip = %d, out of [0,4]", i, a.Skip)
		}
		if a.Index != i {
			t.Errorf("action %d Index = %d, want %d", i, a.Index, i)
		}
	}
}

func TestPlanHumanLike(t *testing.T) {
	p := New(midpointRandom{})
	opts := entity.EngagementOptions{
		NumberOfActions: 12,
		DelayRange:      [2]int{10, 30},
		SkipRange:       [2]int{0, 3},
		LikePercentage:  75,
	}
	plan, err := p.Plan(valueobject.StrategyHumanLike, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Actions) != 12 {
		t.Fatalf("len(Actions) = %d, want 12", len(plan.Actions))
	}
	if plan.LikeCount != 9 || plan.RepostCount != 3 {
		t.Fatalf("counts = %d/%d, want 9/3", plan.LikeCount, plan.RepostCount)
	}
	// sessions = max(1, floor(12/5)) = 2, so the action at index 5 or 6 (the
	// first of session 2) should carry a long inter-session pause in [30,90].
	sessionBoundaryFound := false
	for i := 1; i < len(plan.Actions); i++ {
		if plan.Actions[i].DelaySec >= opts.DelayRange[1] {
			sessionBoundaryFound = true
			if plan.Actions[i].DelaySec < opts.DelayRange[1] || plan.Actions[i].DelaySec > 3*opts.DelayRange[1] {
				t.Errorf("inter-session delay %d out of [%d,%d]", plan.Actions[i].DelaySec, opts.DelayRange[1], 3*opts.DelayRange[1])
			}
		}
	}
	if !sessionBoundaryFound {
		t.Errorf("expected at least one inter-session pause >= %d", opts.DelayRange[1])
	}
}

func TestPlanUniformDeterministicReplay(t *testing.T) {
	opts := entity.EngagementOptions{
		NumberOfActions: 4,
		DelayRange:      [2]int{5, 30},
		SkipRange:       [2]int{0, 4},
		LikePercentage:  50,
	}
	seq := func() *sequenceRandom { return &sequenceRandom{vals: []int{10, 1, 20, 2, 15, 3, 25, 0}} }

	p1 := New(seq())
	plan1, err := p1.Plan(valueobject.StrategyUniform, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p2 := New(seq())
	plan2, err := p2.Plan(valueobject.StrategyUniform, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for i := range plan1.Actions {
		if plan1.Actions[i] != plan2.Actions[i] {
			t.Fatalf("replay mismatch at %d: %+v != %+v", i, plan1.Actions[i], plan2.Actions[i])
		}
	}
}

func TestPlanUnknownStrategy(t *testing.T) {
	p := New(midpointRandom{})
	_, err := p.Plan("bogus", entity.DefaultEngagementOptions())
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
