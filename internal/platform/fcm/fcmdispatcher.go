// Package fcm sends multicast pushes through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// multicastLimit is FCM's cap on tokens per SendEachForMulticast call.
// Larger batches are chunked; responses are concatenated in input order
// so positional classification still holds across chunks.
const multicastLimit = 500

// MessagingClient is the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it; tests substitute a mock.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// The SDK's typed send errors cannot be constructed outside its module;
// tests swap these hooks.
var (
	isUnregistered    = messaging.IsUnregistered
	isInvalidArgument = messaging.IsInvalidArgument
)

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends one payload to every token and returns one result per
// token, aligned with the input order. A non-nil error means the batch
// (or a chunk of it) failed as a whole and no per-token verdicts exist.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content notification.Content, data map[string]string) ([]dispatch.Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	results := make([]dispatch.Result, 0, len(tokens))
	for start := 0; start < len(tokens); start += multicastLimit {
		end := min(start+multicastLimit, len(tokens))
		chunk := tokens[start:end]

		msg := &messaging.MulticastMessage{
			Tokens: chunk,
			Data:   data,
			Notification: &messaging.Notification{
				Title: content.Title,
				Body:  content.Body,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			Webpush: &messaging.WebpushConfig{
				Notification: &messaging.WebpushNotification{
					Title: content.Title,
					Body:  content.Body,
					Icon:  "/assets/icons/icon-192x192.png",
				},
			},
		}

		br, err := d.client.SendEachForMulticast(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("fcm transport failed: %w", err)
		}
		if br.FailureCount > 0 {
			d.logger.Debug("FCM batch had failures",
				"chunk", len(chunk), "success", br.SuccessCount, "failed", br.FailureCount)
		}
		for _, resp := range br.Responses {
			results = append(results, dispatch.Result{Success: resp.Success, Err: normalizeSendError(resp.Error)})
		}
	}

	return results, nil
}

// normalizeSendError tags the SDK's typed dead-token errors with the
// canonical code strings the invalid-token predicate is configured
// with. The admin SDK reports these as typed codes (UNREGISTERED,
// INVALID_ARGUMENT) whose message text carries neither code, so without
// this the substring match would never fire. Everything else passes
// through untouched and reads as transient.
func normalizeSendError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isUnregistered(err):
		return fmt.Errorf("%s: %w", dispatch.CodeTokenNotRegistered, err)
	case isInvalidArgument(err):
		return fmt.Errorf("%s: %w", dispatch.CodeInvalidToken, err)
	}
	return err
}
