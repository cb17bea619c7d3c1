// Package web delivers notifications to browser subscriptions over the
// Web Push protocol.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// VapidConfig carries the VAPID signing keys.
type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg VapidConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{},
	}
}

// Dispatch sends the payload to each subscription and returns the ones
// the push service reported gone (410/404) so the caller can unregister
// them. Transport errors and other rejections are logged only.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []notification.WebPushSubscription,
	content notification.Content,
	data map[string]string,
) ([]notification.WebPushSubscription, error) {

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": content.Title,
			"body":  content.Body,
		},
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal web push payload: %w", err)
	}

	var invalidSubs []notification.WebPushSubscription
	successCount := 0

	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}

		resp, err := webpush.SendNotification(payloadBytes, s, &webpush.Options{
			Subscriber:      d.subscriber,
			VAPIDPublicKey:  d.publicKey,
			VAPIDPrivateKey: d.privateKey,
			TTL:             60,
			HTTPClient:      d.httpClient,
		})
		if err != nil {
			d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
			continue
		}
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			successCount++
		case http.StatusGone, http.StatusNotFound:
			// The subscription is dead; hand it back for cleanup.
			invalidSubs = append(invalidSubs, sub)
		default:
			d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		}
	}

	d.logger.Debug("WebPush batch complete",
		"subscriptions", len(subs), "success", successCount, "invalid", len(invalidSubs))
	return invalidSubs, nil
}
