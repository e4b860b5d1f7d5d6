package handler

import (
	"context"
	"encoding/json"

	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type ServiceDependencies struct {
	Delivery *service.DeliveryService
}

func NotificationHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var event dto.NotificationMessage
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal playback event")
		return err
	}

	zerolog.Ctx(ctx).Debug().
		Str("transition", event.Transition.String()).
		Str("session_key", event.SessionKey).
		Msg("received playback event")

	return deps.Delivery.Deliver(ctx, event)
}
