package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tautulli/Tautulli-sub004/config"
	"github.com/Tautulli/Tautulli-sub004/constant"
	eventHandler "github.com/Tautulli/Tautulli-sub004/handler"
	"github.com/Tautulli/Tautulli-sub004/pkg/plex"
	"github.com/Tautulli/Tautulli-sub004/pkg/rabbitmq"
	"github.com/Tautulli/Tautulli-sub004/repository"
	"github.com/Tautulli/Tautulli-sub004/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Run(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)
	if err := repo.Migrate(ctx); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to migrate database")
	}

	publisher, err := rabbitmq.NewPublisher(conn, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("failed to open publisher channel")
	}
	defer publisher.Close()

	notifier := service.NewNotifier(publisher, cfg.Notifications.QueueBuffer)
	go notifier.Run(ctx)

	plexClient := plex.NewClient(cfg.Plex)
	monitor := service.NewMonitor(repo, plexClient, notifier, cfg.Monitor)
	go monitor.Run(ctx)

	sinks := make([]service.Sink, 0, len(cfg.Notifications.Webhooks))
	for i, url := range cfg.Notifications.Webhooks {
		sinks = append(sinks, service.NewWebhookSink(fmt.Sprintf("webhook-%d", i), url))
	}
	dedup := service.NewRedisDedup(cfg.Cache, cfg.Notifications.DedupTTL)
	delivery := service.NewDeliveryService(sinks, dedup)

	serviceDeps := eventHandler.ServiceDependencies{
		Delivery: delivery,
	}

	consumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, eventHandler.NotificationHandler)
	go func() {
		err := consumer.Consume(ctx, serviceDeps)
		if err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("notification consumer error")
		}
	}()

	exportService := service.NewExportService(repo, cfg.Storage, cfg.MinIOBucket)

	r := gin.Default()
	addHealth(r)
	api := r.Group("/api/v2")
	api.GET("/activity", eventHandler.Activity(repo))
	api.GET("/history", eventHandler.History(repo))
	api.POST("/export", eventHandler.Export(exportService))

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
