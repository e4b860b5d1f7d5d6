package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/entities"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string // routing keys in publish order
	bodies    [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, routingKey)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakePublisher) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func TestNotifier_PreservesSubmissionOrder(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	sess := entities.Session{SessionKey: "abc", RatingKey: "100", Started: time.Now()}
	order := []constant.Transition{
		constant.TransitionPlay,
		constant.TransitionPause,
		constant.TransitionResume,
		constant.TransitionStop,
	}
	for _, tr := range order {
		n.Notify(ctx, tr, sess)
	}

	deadline := time.After(2 * time.Second)
	for len(pub.keys()) < len(order) {
		select {
		case <-deadline:
			t.Fatalf("published %v, want %d events", pub.keys(), len(order))
		case <-time.After(10 * time.Millisecond):
		}
	}

	got := pub.keys()
	for i, tr := range order {
		want := "playback." + tr.String()
		if got[i] != want {
			t.Fatalf("publish order = %v, want %v at index %d", got, want, i)
		}
	}
}

func TestNotifier_NotifyNeverBlocks(t *testing.T) {
	// No drainer running and a queue of one: further events must be
	// dropped, not block the caller.
	n := NewNotifier(&fakePublisher{}, 1)
	ctx := context.Background()
	sess := entities.Session{SessionKey: "abc", RatingKey: "100"}

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			n.Notify(ctx, constant.TransitionPlay, sess)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	if len(n.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(n.queue))
	}
}

func TestNotifier_MessagePayload(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	started := time.Now().Add(-5 * time.Minute)
	n.Notify(ctx, constant.TransitionWatched, entities.Session{
		SessionKey: "abc",
		RatingKey:  "100",
		State:      constant.StatePlaying,
		ViewOffset: 550000,
		Duration:   600000,
		User:       "alice",
		Started:    started,
	})

	deadline := time.After(2 * time.Second)
	for len(pub.keys()) < 1 {
		select {
		case <-deadline:
			t.Fatal("notification never published")
		case <-time.After(10 * time.Millisecond):
		}
	}

	pub.mu.Lock()
	body := pub.bodies[0]
	pub.mu.Unlock()

	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if msg.Transition != constant.TransitionWatched || msg.SessionKey != "abc" || msg.User != "alice" {
		t.Errorf("payload = %+v", msg)
	}
	if !msg.Started.Equal(started) {
		t.Errorf("payload Started = %v, want %v", msg.Started, started)
	}
	if msg.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("payload missing message id")
	}
}
