// Package ridenotifier assembles the notification service: the event
// pipeline, the dispatch engine and the device registration API.
package ridenotifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tripwise-app/go-ride-notifier/internal/api"
	"github.com/tripwise-app/go-ride-notifier/internal/classifier"
	"github.com/tripwise-app/go-ride-notifier/internal/notify"
	"github.com/tripwise-app/go-ride-notifier/internal/pipeline"
	"github.com/tripwise-app/go-ride-notifier/internal/platform/apns"
	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/ridenotifier/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[event.DocumentChange]
	logger          *slog.Logger
}

// New assembles the service from its injected collaborators. The APNs
// and web dispatchers may be nil; delivery then covers FCM only.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	fcmDispatcher dispatch.Dispatcher,
	apnsDispatcher dispatch.Dispatcher,
	webDispatcher dispatch.WebDispatcher,
	tokenStore dispatch.TokenStore,
	groups classifier.GroupReader,
	rides classifier.RideReader,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Dispatch engine
	var opts []notify.Option
	if apnsDispatcher != nil {
		opts = append(opts, notify.WithAPNS(apnsDispatcher, dispatch.NewInvalidTokenMatcher(apns.InvalidTokenReasons...)))
	}
	if webDispatcher != nil {
		opts = append(opts, notify.WithWeb(webDispatcher))
	}
	notifier := notify.New(
		tokenStore,
		fcmDispatcher,
		dispatch.NewInvalidTokenMatcher(cfg.InvalidTokenCodes...),
		logger,
		opts...,
	)

	// 3. Classifiers + pipeline
	classifiers := classifier.New(groups, rides, logger)
	processor := pipeline.NewProcessor(classifiers, notifier, logger)

	streamingService, err := messagepipeline.NewStreamingService[event.DocumentChange](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.DocumentChangeTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. Registration API
	tokenAPI := api.NewTokenAPI(tokenStore, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/register/fcm", tokenAPI.RegisterFCM)
	handle("POST /api/v1/register/apns", tokenAPI.RegisterAPNS)
	handle("POST /api/v1/register/web", tokenAPI.RegisterWeb)
	handle("POST /api/v1/unregister/fcm", tokenAPI.UnregisterToken)
	handle("POST /api/v1/unregister/web", tokenAPI.UnregisterWeb)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
