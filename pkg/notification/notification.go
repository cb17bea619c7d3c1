// Package notification contains the domain models shared between the
// classifiers, the dispatch engine and the storage layer.
package notification

// Content is the user-visible part of a push notification.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Payload is one notification as handed to the dispatch engine. It is
// transient: built per event, never persisted.
type Payload struct {
	Content Content           `json:"content"`
	Data    map[string]string `json:"data,omitempty"`
}

// Platform tags a registered device token with the transport that
// delivers to it. Tokens without a tag are treated as FCM.
type Platform string

const (
	PlatformFCM  Platform = "fcm"
	PlatformAPNS Platform = "apns"
)

// WebPushSubscription is the browser-side subscription object as handed
// to us by the client during registration. The keys stay in the
// base64url text form PushManager produces; the push library decodes
// them itself on send.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Devices holds everything registered for one user, bucketed by
// transport. The token slices preserve store order; the dispatch engine
// relies on that order to match per-token send results.
type Devices struct {
	UserID           string                `json:"user_id"`
	FCMTokens        []string              `json:"fcm_tokens"`
	APNSTokens       []string              `json:"apns_tokens"`
	WebSubscriptions []WebPushSubscription `json:"web_subscriptions"`
}

// Empty reports whether the user has no registered devices at all.
func (d *Devices) Empty() bool {
	return len(d.FCMTokens) == 0 && len(d.APNSTokens) == 0 && len(d.WebSubscriptions) == 0
}
