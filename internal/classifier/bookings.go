package classifier

import (
	"fmt"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

const fallbackPassengerName = "Un passager"

// bookingCreated notifies the ride's driver that a passenger requested
// a booking.
func (c *Classifiers) bookingCreated(evt *event.DocumentChange) *Notification {
	var booking event.Booking
	if !evt.DecodeAfter(&booking) {
		return nil
	}

	if booking.DriverID == "" {
		c.logger.Info("Booking has no driverId, skipping", "booking_id", evt.Param("bookingId"))
		return nil
	}

	passengerName := booking.PassengerName
	if passengerName == "" {
		passengerName = fallbackPassengerName
	}

	return &Notification{
		Recipients: []string{booking.DriverID},
		Payload: notification.Payload{
			Content: notification.Content{
				Title: "Nouvelle réservation",
				Body:  fmt.Sprintf("%s a demandé une réservation", passengerName),
			},
			Data: map[string]string{
				"type":      "booking_created",
				"bookingId": evt.Param("bookingId"),
				"rideId":    booking.RideID,
			},
		},
	}
}

// bookingAccepted notifies the passenger when the booking's status
// transitions to accepted.
func (c *Classifiers) bookingAccepted(evt *event.DocumentChange) *Notification {
	var before, after event.Booking
	if !evt.DecodeBefore(&before) || !evt.DecodeAfter(&after) {
		return nil
	}

	if !statusChangedTo(before.Status, after.Status, event.StatusAccepted) {
		return nil
	}
	if after.PassengerID == "" {
		return nil
	}

	return &Notification{
		Recipients: []string{after.PassengerID},
		Payload: notification.Payload{
			Content: notification.Content{
				Title: "Réservation acceptée",
				Body:  "Votre demande a été acceptée",
			},
			Data: map[string]string{
				"type":      "booking_accepted",
				"bookingId": evt.Param("bookingId"),
				"rideId":    after.RideID,
			},
		},
	}
}
