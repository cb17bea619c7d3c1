// Package apns provides the client for the Apple Push Notification
// Service, for devices registered with the apns platform tag.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// InvalidTokenReasons are the APNs rejection reasons that mean the
// device token is dead. Wire them into an InvalidTokenMatcher so the
// dispatch engine prunes on them.
var InvalidTokenReasons = []string{
	apns2.ReasonBadDeviceToken,
	apns2.ReasonUnregistered,
	apns2.ReasonDeviceTokenNotForTopic,
}

// APNSClient is the subset of apns2.Client we use.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // the app bundle id
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 signing key.
	P8KeyContent string
}

// NewDispatcher parses the P8 key immediately so bad credentials fail
// at startup, not on the first push.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})

	return &Dispatcher{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}, nil
}

// NewDispatcherWithClient injects a pre-built client; used by tests.
func NewDispatcherWithClient(client APNSClient, bundleID string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  bundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch pushes to each token in order and returns one result per
// token. APNs has no multicast endpoint, so the batch is a sequence of
// unary HTTP/2 requests; this runs inside a scaled pipeline worker, so
// serial sends per user are acceptable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content notification.Content, data map[string]string) ([]dispatch.Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body)
	for k, v := range data {
		builder.Custom(k, v)
	}

	results := make([]dispatch.Result, 0, len(tokens))
	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("apns batch aborted: %w", err)
		}

		res, err := d.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     builder,
		})
		if err != nil {
			// Transport failure says nothing about the token itself.
			d.logger.Error("APNs transport failed", "err", err)
			results = append(results, dispatch.Result{Err: fmt.Errorf("apns transport failed: %w", err)})
			continue
		}

		if res.Sent() {
			results = append(results, dispatch.Result{Success: true})
			continue
		}
		results = append(results, dispatch.Result{Err: fmt.Errorf("apns rejected: %s", res.Reason)})
	}

	return results, nil
}
