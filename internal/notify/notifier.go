// Package notify implements the multicast dispatch engine: fetch a
// user's devices, push the payload through the platform transports and
// prune the tokens reported as dead.
package notify

import (
	"context"
	"log/slog"

	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// Notifier delivers one payload to all of a user's registered devices.
// The APNs and web dispatchers are optional; devices on a platform with
// no dispatcher are logged and skipped.
type Notifier struct {
	store       dispatch.TokenStore
	fcm         dispatch.Dispatcher
	apns        dispatch.Dispatcher
	web         dispatch.WebDispatcher
	fcmInvalid  dispatch.InvalidTokenMatcher
	apnsInvalid dispatch.InvalidTokenMatcher
	logger      *slog.Logger
}

// Option configures optional delivery paths.
type Option func(*Notifier)

// WithAPNS enables direct APNs delivery for tokens registered under the
// apns platform tag.
func WithAPNS(d dispatch.Dispatcher, invalid dispatch.InvalidTokenMatcher) Option {
	return func(n *Notifier) {
		n.apns = d
		n.apnsInvalid = invalid
	}
}

// WithWeb enables web-push delivery.
func WithWeb(d dispatch.WebDispatcher) Option {
	return func(n *Notifier) { n.web = d }
}

func New(store dispatch.TokenStore, fcm dispatch.Dispatcher, invalid dispatch.InvalidTokenMatcher, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		store:      store,
		fcm:        fcm,
		fcmInvalid: invalid,
		logger:     logger.With("component", "Notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendToUser delivers the payload to every device the user has
// registered. It never fails upward: every failure terminates here with
// a log line, so one bad send can never block the event that follows.
// Token pruning is an opportunistic side effect of a failed send, not a
// separate maintenance job.
func (n *Notifier) SendToUser(ctx context.Context, userID string, payload notification.Payload) {
	logger := n.logger.With("user_id", userID)

	devices, err := n.store.Fetch(ctx, userID)
	if err != nil {
		logger.Warn("Device token fetch failed, dropping notification", "err", err)
		return
	}
	if devices.Empty() {
		logger.Info("No devices registered for user, skipping notification")
		return
	}

	if len(devices.FCMTokens) > 0 {
		n.sendTokens(ctx, logger.With("platform", "fcm"), n.fcm, n.fcmInvalid, userID, devices.FCMTokens, payload)
	}

	if len(devices.APNSTokens) > 0 {
		if n.apns == nil {
			logger.Warn("APNs tokens registered but no APNs dispatcher configured", "count", len(devices.APNSTokens))
		} else {
			n.sendTokens(ctx, logger.With("platform", "apns"), n.apns, n.apnsInvalid, userID, devices.APNSTokens, payload)
		}
	}

	if len(devices.WebSubscriptions) > 0 {
		if n.web == nil {
			logger.Warn("Web subscriptions registered but no web dispatcher configured", "count", len(devices.WebSubscriptions))
		} else {
			n.sendWeb(ctx, logger.With("platform", "web"), userID, devices.WebSubscriptions, payload)
		}
	}
}

// sendTokens runs one multicast send and prunes the tokens whose
// positionally aligned result matched the invalid-token predicate. All
// other failures keep the token: a transient error is not evidence the
// token is dead.
func (n *Notifier) sendTokens(
	ctx context.Context,
	logger *slog.Logger,
	dispatcher dispatch.Dispatcher,
	invalid dispatch.InvalidTokenMatcher,
	userID string,
	tokens []string,
	payload notification.Payload,
) {
	results, err := dispatcher.Dispatch(ctx, tokens, payload.Content, payload.Data)
	if err != nil {
		logger.Error("Multicast send failed", "tokens", len(tokens), "err", err)
		return
	}
	if len(results) != len(tokens) {
		// The positional contract is load-bearing; without it we cannot
		// tell which token a failure belongs to.
		logger.Error("Transport result misaligned with token batch, skipping prune",
			"tokens", len(tokens), "results", len(results))
		return
	}

	var invalidTokens []string
	failures := 0
	for idx, res := range results {
		if res.Success {
			continue
		}
		failures++
		if invalid.Match(res.Err) {
			invalidTokens = append(invalidTokens, tokens[idx])
		} else {
			logger.Warn("Send failed for token, keeping it", "err", res.Err)
		}
	}
	logger.Info("Multicast send complete",
		"tokens", len(tokens), "failed", failures, "invalid", len(invalidTokens))

	if len(invalidTokens) == 0 {
		return
	}
	// Fire-and-forget relative to the send: the notification already
	// went out, a failed prune just leaves the token for next time.
	if err := n.store.DeleteTokens(ctx, userID, invalidTokens); err != nil {
		logger.Warn("Invalid token cleanup failed", "count", len(invalidTokens), "err", err)
	}
}

func (n *Notifier) sendWeb(
	ctx context.Context,
	logger *slog.Logger,
	userID string,
	subs []notification.WebPushSubscription,
	payload notification.Payload,
) {
	invalidSubs, err := n.web.Dispatch(ctx, subs, payload.Content, payload.Data)
	if err != nil {
		logger.Error("Web push send failed", "subscriptions", len(subs), "err", err)
		return
	}
	for _, sub := range invalidSubs {
		if err := n.store.UnregisterWeb(ctx, userID, sub.Endpoint); err != nil {
			logger.Warn("Stale web subscription cleanup failed", "endpoint", sub.Endpoint, "err", err)
		}
	}
}
