// Package dispatch defines the contracts between the notification engine
// and its collaborators: the per-platform push transports and the device
// token store.
package dispatch

import (
	"context"
	"strings"

	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// Result is the outcome of one token's send within a multicast call.
// The transport returns one Result per input token, positionally aligned
// with the token slice it was given.
type Result struct {
	Success bool
	Err     error
}

// Dispatcher sends one payload to a batch of platform tokens.
//
// Implementations must return exactly len(tokens) results in token order
// when the call succeeds; they must not reorder, deduplicate or drop
// tokens. A non-nil error means the batch as a whole failed and no
// per-token classification is possible.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content notification.Content, data map[string]string) ([]Result, error)
}

// WebDispatcher sends one payload to a batch of web-push subscriptions.
// It returns the subscriptions the push service reported as gone, so the
// caller can unregister them.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []notification.WebPushSubscription, content notification.Content, data map[string]string) ([]notification.WebPushSubscription, error)
}

// TokenStore manages the registered devices of a user. Tokens are
// created by the client app through registration; the dispatch engine
// only ever reads and deletes them.
type TokenStore interface {
	// RegisterToken upserts a device token under the given platform tag.
	RegisterToken(ctx context.Context, userID, token string, platform notification.Platform) error

	// RegisterWeb upserts a web-push subscription, keyed by its endpoint.
	RegisterWeb(ctx context.Context, userID string, sub notification.WebPushSubscription) error

	// UnregisterWeb removes the subscription with the given endpoint.
	UnregisterWeb(ctx context.Context, userID, endpoint string) error

	// DeleteTokens removes a set of device tokens in one best-effort
	// batch. Partial failures are reported but not rolled back.
	DeleteTokens(ctx context.Context, userID string, tokens []string) error

	// Fetch returns all registered devices for a user, bucketed by
	// platform.
	Fetch(ctx context.Context, userID string) (*notification.Devices, error)
}

// Canonical dead-token codes. Transports normalize their SDK's typed
// errors onto these strings so a default-configured matcher recognizes
// them regardless of the SDK's own error text.
const (
	CodeTokenNotRegistered = "registration-token-not-registered"
	CodeInvalidToken       = "invalid-registration-token"
)

// InvalidTokenMatcher decides whether a per-token send error means the
// token is permanently dead (uninstalled app, unregistered device) and
// should be pruned. It matches by substring because transport error
// codes are often namespaced or prefixed.
type InvalidTokenMatcher struct {
	codes []string
}

// NewInvalidTokenMatcher builds a matcher from a set of error-code
// substrings.
func NewInvalidTokenMatcher(codes ...string) InvalidTokenMatcher {
	return InvalidTokenMatcher{codes: codes}
}

// DefaultInvalidTokenMatcher covers the FCM codes that indicate a dead
// registration token.
func DefaultInvalidTokenMatcher() InvalidTokenMatcher {
	return NewInvalidTokenMatcher(CodeTokenNotRegistered, CodeInvalidToken)
}

// Match reports whether err carries one of the configured codes.
// Transient failures (network, quota, payload problems) do not match and
// the token is kept.
func (m InvalidTokenMatcher) Match(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range m.codes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
