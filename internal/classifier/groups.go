package classifier

import (
	"context"
	"fmt"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

const (
	fallbackSenderName  = "Quelqu'un"
	fallbackMessageText = "Nouveau message"
)

// groupMessageCreated notifies every group member except the sender.
// The recipient set is deduplicated; a member listed twice still gets
// one notification, and the sender gets none.
func (c *Classifiers) groupMessageCreated(ctx context.Context, evt *event.DocumentChange) *Notification {
	var msg event.GroupMessage
	if !evt.DecodeAfter(&msg) {
		return nil
	}

	groupID := evt.Param("groupId")
	group, err := c.groups.Group(ctx, groupID)
	if err != nil {
		c.logger.Warn("Group lookup failed, suppressing notification", "group_id", groupID, "err", err)
		return nil
	}

	seen := make(map[string]struct{}, len(group.MemberIDs))
	var recipients []string
	for _, uid := range group.MemberIDs {
		if uid == "" || uid == msg.SenderID {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		recipients = append(recipients, uid)
	}
	if len(recipients) == 0 {
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
		Recipients: recipients,
		Payload: notification.Payload{
			Content: notification.Content{
				Title: "Nouveau message",
				Body:  fmt.Sprintf("%s: %s", senderName, text),
			},
			Data: map[string]string{
				"type":      "group_message",
				"groupId":   groupID,
				"messageId": evt.Param("messageId"),
			},
		},
	}
}
