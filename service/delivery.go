package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink delivers one transition event to an external notification service.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg dto.NotificationMessage) error
}

type WebhookSink struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookSink(name, url string) *WebhookSink {
	return &WebhookSink{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSink) Name() string {
	return s.name
}

func (s *WebhookSink) Send(ctx context.Context, msg dto.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s responded %d", s.name, resp.StatusCode)
	}
	return nil
}

// DedupStore answers whether a delivery key is being seen for the first
// time within its window.
type DedupStore interface {
	Once(ctx context.Context, key string) bool
}

type redisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDedup(client *redis.Client, ttl time.Duration) DedupStore {
	return &redisDedup{client: client, ttl: ttl}
}

// Once fails open: if the dedup store is unreachable the event is treated
// as first-seen, trading duplicate delivery for lost delivery.
func (d *redisDedup) Once(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("dedup store unavailable")
		return true
	}
	return ok
}

// DeliveryService is the consume half of the dispatcher: it fans one event
// out to every enabled sink, isolating per-sink failures. Watched events
// are de-duplicated per session lifecycle, since the differ re-emits them
// on every tick where the threshold holds.
type DeliveryService struct {
	sinks []Sink
	dedup DedupStore
}

func NewDeliveryService(sinks []Sink, dedup DedupStore) *DeliveryService {
	return &DeliveryService{
		sinks: sinks,
		dedup: dedup,
	}
}

func (d *DeliveryService) Deliver(ctx context.Context, msg dto.NotificationMessage) error {
	if msg.Transition == constant.TransitionWatched && d.dedup != nil {
		key := fmt.Sprintf("notify:watched:%s:%s:%d", msg.SessionKey, msg.RatingKey, msg.Started.Unix())
		if !d.dedup.Once(ctx, key) {
			zerolog.Ctx(ctx).Debug().
				Str("session_key", msg.SessionKey).
				Str("rating_key", msg.RatingKey).
				Msg("duplicate watched notification suppressed")
			return nil
		}
	}

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("sink", sink.Name()).
				Str("transition", msg.Transition.String()).
				Str("session_key", msg.SessionKey).
				Msg("sink delivery failed")
		}
	}
	return nil
}
