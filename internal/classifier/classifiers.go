// Package classifier derives notifications from document-change events:
// whether to notify at all, who receives it, and with what content.
package classifier

import (
	"context"
	"log/slog"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// Notification is a classifier verdict: the recipients and the payload
// to fan out. A nil verdict means suppress.
type Notification struct {
	Recipients []string
	Payload    notification.Payload
}

// GroupReader resolves a chat group by id.
type GroupReader interface {
	Group(ctx context.Context, groupID string) (*event.Group, error)
}

// RideReader resolves a ride by id.
type RideReader interface {
	Ride(ctx context.Context, rideID string) (*event.Ride, error)
}

// Classifiers holds the auxiliary document readers the individual
// classifiers need. Each classifier is otherwise a pure function of the
// event.
type Classifiers struct {
	groups GroupReader
	rides  RideReader
	logger *slog.Logger
}

func New(groups GroupReader, rides RideReader, logger *slog.Logger) *Classifiers {
	return &Classifiers{
		groups: groups,
		rides:  rides,
		logger: logger.With("component", "Classifiers"),
	}
}

// Classify routes an event to the classifier for its kind. A nil result
// means no notification is due: unknown kind, guard condition not met,
// or undecodable input. Nothing here is fatal.
func (c *Classifiers) Classify(ctx context.Context, evt *event.DocumentChange) *Notification {
	switch evt.Kind {
	case event.KindBookingCreated:
		return c.bookingCreated(evt)
	case event.KindBookingUpdated:
		return c.bookingAccepted(evt)
	case event.KindGroupMessageCreated:
		return c.groupMessageCreated(ctx, evt)
	case event.KindRideChatMessageCreated:
		return c.rideChatMessageCreated(ctx, evt)
	case event.KindRideRequestUpdated:
		return c.rideRequestAccepted(evt)
	default:
		c.logger.Debug("No classifier for event kind, skipping", "kind", evt.Kind)
		return nil
	}
}

// statusChangedTo is the shared guard for update events: the status must
// actually change (a missing old status counts as changed) and the new
// status must equal want. Re-saving an already-accepted record is
// idempotent and never re-notifies.
func statusChangedTo(before, after, want string) bool {
	if before == after {
		return false
	}
	return after == want
}
