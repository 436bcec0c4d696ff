package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 1)

	unsubscribe := b.Subscribe(context.Background(), JobStarted, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	b.Publish(Event{Name: JobStarted, TenantID: "t1", JobID: "j1"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].JobID != "j1" {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishOnlyMatchesSubscribedName(t *testing.T) {
	b := New()
	defer b.Close()

	calls := make(chan Event, 4)
	unsubscribe := b.Subscribe(context.Background(), JobCompleted, func(ev Event) { calls <- ev })
	defer unsubscribe()

	b.Publish(Event{Name: JobFailed, JobID: "wrong"})
	b.Publish(Event{Name: JobCompleted, JobID: "right"})

	select {
	case ev := <-calls:
		if ev.JobID != "right" {
			t.Fatalf("got %+v, want JobID=right", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	select {
	case ev := <-calls:
		t.Fatalf("unexpected second delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	calls := make(chan Event, 4)
	unsubscribe := b.Subscribe(context.Background(), JobLog, func(ev Event) { calls <- ev })
	unsubscribe()

	b.Publish(Event{Name: JobLog, JobID: "after-unsub"})

	select {
	case ev := <-calls:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	defer b.Close()

	n := 5
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		unsubscribe := b.Subscribe(context.Background(), JobProgress, func(ev Event) { wg.Done() })
		defer unsubscribe()
	}

	b.Publish(Event{Name: JobProgress, JobID: "fanout"})

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the event")
	}
}
