package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// rideChatMessageCreated routes a ride-chat message to the other party.
// The chat id is the composite key "rideId_passengerId": when the sender
// is the passenger the driver is looked up on the ride, otherwise the
// passenger is the recipient. Malformed keys are inert.
func (c *Classifiers) rideChatMessageCreated(ctx context.Context, evt *event.DocumentChange) *Notification {
	var msg event.ChatMessage
	if !evt.DecodeAfter(&msg) {
		return nil
	}

	chatID := evt.Param("chatId")
	parts := strings.Split(chatID, "_")
	if len(parts) < 2 {
		return nil
	}
	rideID, passengerID := parts[0], parts[1]

	var recipientID string
	if msg.SenderID == passengerID {
		ride, err := c.rides.Ride(ctx, rideID)
		if err != nil {
			c.logger.Warn("Ride lookup failed, suppressing notification", "ride_id", rideID, "err", err)
			return nil
		}
		recipientID = ride.DriverID
	} else {
		recipientID = passengerID
	}

	if recipientID == "" || recipientID == msg.SenderID {
		return nil
	}

	senderName := msg.SenderName
	if senderName == "" {
		senderName = fallbackSenderName
	}
	text := msg.Message
	if text == "" {
		text = fallbackMessageText
	}

	return &Notification{
		Recipients: []string{recipientID},
		Payload: notification.Payload{
			Content: notification.Content{
				Title: "Message de trajet",
				Body:  fmt.Sprintf("%s: %s", senderName, text),
			},
			Data: map[string]string{
				"type":      "ride_chat_message",
				"chatId":    chatID,
				"rideId":    rideID,
				"messageId": evt.Param("messageId"),
			},
		},
	}
}
