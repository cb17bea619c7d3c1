package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tripwise-app/go-ride-notifier/internal/classifier"
	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// Notifier is the slice of the dispatch engine the processor needs.
type Notifier interface {
	SendToUser(ctx context.Context, userID string, payload notification.Payload)
}

// NewProcessor builds the pipeline stage that classifies each document
// change and fans the verdict out to the recipients, one SendToUser per
// recipient. The processor always acks: suppression and delivery
// failures alike are terminal here, never retried through the pipeline.
func NewProcessor(
	classifiers *classifier.Classifiers,
	notifier Notifier,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[event.DocumentChange] {

	return func(ctx context.Context, original messagepipeline.Message, change *event.DocumentChange) error {
		procLogger := logger.With(
			"event_kind", change.Kind,
			"pubsub_msg_id", original.ID,
		)

		verdict := classifiers.Classify(ctx, change)
		if verdict == nil {
			procLogger.Debug("Event suppressed, no notification due")
			return nil
		}

		// Fan-out sends are independent: no cross-recipient ordering and
		// no requirement that all succeed.
		for _, recipient := range verdict.Recipients {
			notifier.SendToUser(ctx, recipient, verdict.Payload)
		}
		procLogger.Info("Notification fan-out complete", "recipients", len(verdict.Recipients))
		return nil
	}
}
