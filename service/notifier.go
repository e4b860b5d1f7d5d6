package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/entities"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Notifier is the publish half of the dispatcher: transition events go into
// a bounded in-process queue drained by a single goroutine, so a slow
// broker never delays a poll tick. The single drainer preserves submission
// order, which keeps per-session notifications causal.
type Notifier struct {
	pub   publisher
	queue chan envelope
}

type envelope struct {
	routingKey string
	body       []byte
}

func NewNotifier(pub publisher, buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{
		pub:   pub,
		queue: make(chan envelope, buffer),
	}
}

// Notify queues one transition event for publication. It never blocks: if
// the queue is full the event is dropped with a log entry.
func (n *Notifier) Notify(ctx context.Context, transition constant.Transition, session entities.Session) {
	msg := dto.NotificationMessage{
		ID:               uuid.New(),
		Transition:       transition,
		SessionKey:       session.SessionKey,
		RatingKey:        session.RatingKey,
		State:            session.State,
		ViewOffset:       session.ViewOffset,
		Duration:         session.Duration,
		MediaType:        session.MediaType,
		Title:            session.Title,
		GrandparentTitle: session.GrandparentTitle,
		User:             session.User,
		Player:           session.Player,
		Started:          session.Started,
		EmittedAt:        time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("transition", transition.String()).Msg("failed to encode notification")
		return
	}

	select {
	case n.queue <- envelope{routingKey: "playback." + transition.String(), body: body}:
	default:
		zerolog.Ctx(ctx).Warn().
			Str("transition", transition.String()).
			Str("session_key", session.SessionKey).
			Msg("notification queue full, dropping event")
	}
}

// Run drains the queue until ctx is cancelled. In-flight publishes finish;
// queued events that were never drained are dropped with the process.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-n.queue:
			if err := n.pub.Publish(ctx, e.routingKey, e.body); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("routing_key", e.routingKey).Msg("failed to publish notification")
			}
		}
	}
}
