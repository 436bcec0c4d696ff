package entity

import (
	"testing"

	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

func TestJobSetStateAllowsWaitingToActive(t *testing.T) {
	j := &Job{State: valueobject.JobStateWaiting}
	if err := j.SetState(valueobject.JobStateActive); err != nil {
		t.Fatalf("waiting -> active should be legal, got %v", err)
	}
	if j.State != valueobject.JobStateActive {
		t.Fatalf("expected state active, got %s", j.State)
	}
}

func TestJobSetStateRejectsWaitingToCompleted(t *testing.T) {
	j := &Job{State: valueobject.JobStateWaiting}
	if err := j.SetState(valueobject.JobStateCompleted); err == nil {
		t.Fatalf("expected waiting -> completed to be rejected")
	}
	if j.State != valueobject.JobStateWaiting {
		t.Fatalf("rejected transition must not mutate state, got %s", j.State)
	}
}

func TestJobSetStateAllowsStalledBackToActive(t *testing.T) {
	j := &Job{State: valueobject.JobStateStalled}
	if err := j.SetState(valueobject.JobStateActive); err != nil {
		t.Fatalf("stalled -> active should be legal, got %v", err)
	}
}
