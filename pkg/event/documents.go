package event

// Document shapes as written by the mobile clients. Every field is
// optional on the wire; classifiers resolve the "maybe missing" cases
// once, at the decode boundary, and suppress on anything they cannot
// work with.

// StatusAccepted is the only status transition that triggers a
// notification, for bookings and ride requests alike.
const StatusAccepted = "accepted"

// Booking is a passenger's reservation on a published ride.
type Booking struct {
	DriverID      string `json:"driverId"`
	PassengerID   string `json:"passengerId"`
	PassengerName string `json:"passengerName"`
	RideID        string `json:"rideId"`
	Status        string `json:"status"`
}

// Group is a chat group document; only the membership matters here.
type Group struct {
	MemberIDs []string `json:"memberIds" firestore:"memberIds"`
}

// GroupMessage is a message posted under a group.
type GroupMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
}

// ChatMessage is a message inside a ride chat. The chat's document id
// is the composite key "rideId_passengerId".
type ChatMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
}

// Ride carries the driver a ride-chat message must be routed to when
// the passenger is the sender.
type Ride struct {
	DriverID string `json:"driverId" firestore:"driverId"`
}

// RideRequest is a passenger's open request with driver proposals.
type RideRequest struct {
	PassengerID string     `json:"passengerId"`
	Status      string     `json:"status"`
	Proposals   []Proposal `json:"proposals"`
}

// Proposal is one driver's offer on a ride request.
type Proposal struct {
	ID            string  `json:"id"`
	DriverID      string  `json:"driverId"`
	DriverName    string  `json:"driverName"`
	ProposedPrice float64 `json:"proposedPrice"`
	Status        string  `json:"status"`
}

// AcceptedProposal returns the first proposal in array order whose
// status is accepted, or nil.
func (r *RideRequest) AcceptedProposal() *Proposal {
	for i := range r.Proposals {
		if r.Proposals[i].Status == StatusAccepted {
			return &r.Proposals[i]
		}
	}
	return nil
}
