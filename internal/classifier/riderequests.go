package classifier

import (
	"fmt"
	"strconv"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

const fallbackDriverName = "Un conducteur"

// rideRequestAccepted notifies the passenger when a driver proposal on
// their request is accepted. The first proposal in array order with an
// accepted status supplies the driver name, price and proposal id.
func (c *Classifiers) rideRequestAccepted(evt *event.DocumentChange) *Notification {
	var before, after event.RideRequest
	if !evt.DecodeBefore(&before) || !evt.DecodeAfter(&after) {
		return nil
	}

	if !statusChangedTo(before.Status, after.Status, event.StatusAccepted) {
		return nil
	}
	if after.PassengerID == "" {
		return nil
	}

	driverName := fallbackDriverName
	proposalID := ""
	body := ""
	if accepted := after.AcceptedProposal(); accepted != nil {
		if accepted.DriverName != "" {
			driverName = accepted.DriverName
		}
		proposalID = accepted.ID
		if accepted.ProposedPrice > 0 {
			body = fmt.Sprintf("%s a accepté votre demande pour %s TND",
				driverName, strconv.FormatFloat(accepted.ProposedPrice, 'f', -1, 64))
		}
	}
	if body == "" {
		body = fmt.Sprintf("%s a accepté votre demande", driverName)
	}

	return &Notification{
		Recipients: []string{after.PassengerID},
		Payload: notification.Payload{
			Content: notification.Content{
				Title: "Demande acceptée",
				Body:  body,
			},
			Data: map[string]string{
				"type":       "ride_request_accepted",
				"requestId":  evt.Param("requestId"),
				"proposalId": proposalID,
			},
		},
	}
}
