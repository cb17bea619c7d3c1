// Package pipeline contains the message processing stages that bind the
// Pub/Sub event feed to the classifiers and the dispatch engine.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tripwise-app/go-ride-notifier/pkg/event"
)

// DocumentChangeTransformer unmarshals a raw trigger message into a
// typed event.DocumentChange. Malformed envelopes are skipped so the
// StreamingService can route them to the DLQ; a bad event must never
// wedge the subscription.
func DocumentChangeTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*event.DocumentChange, bool, error) {
	var change event.DocumentChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal document change from message %s: %w", msg.ID, err)
	}
	if change.Kind == "" {
		return nil, true, fmt.Errorf("document change message %s has no event kind", msg.ID)
	}
	return &change, false, nil
}
