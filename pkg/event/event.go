// Package event models the document-change events the service reacts
// to: the wire envelope published by the trigger forwarder and the
// loosely-structured documents it carries.
package event

import (
	"bytes"
	"encoding/json"
)

// Kinds of document change the router understands. Created events carry
// only After; updated events carry Before and After.
const (
	KindBookingCreated         = "bookings.created"
	KindBookingUpdated         = "bookings.updated"
	KindGroupMessageCreated    = "groups.messages.created"
	KindRideChatMessageCreated = "ride_chats.messages.created"
	KindRideRequestUpdated     = "ride_requests.updated"
)

// DocumentChange is the envelope delivered per document-change event.
// Params holds the ids extracted from the document path (bookingId,
// groupId/messageId, chatId/messageId, requestId). Before and After are
// the raw document bodies; Before is empty for created events.
type DocumentChange struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
	Before json.RawMessage   `json:"before,omitempty"`
	After  json.RawMessage   `json:"after,omitempty"`
}

// Param returns the named path parameter, or "" when absent.
func (e *DocumentChange) Param(name string) string {
	return e.Params[name]
}

// DecodeBefore unmarshals the prior document body into v. It returns
// false when the snapshot is absent or does not decode; incomplete data
// is an expected shape here, not an error.
func (e *DocumentChange) DecodeBefore(v any) bool {
	return decode(e.Before, v)
}

// DecodeAfter unmarshals the new document body into v.
func (e *DocumentChange) DecodeAfter(v any) bool {
	return decode(e.After, v)
}

func decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
