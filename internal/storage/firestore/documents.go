package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/tripwise-app/go-ride-notifier/pkg/event"
)

// DocumentStore provides the point reads the classifiers need: group
// membership and ride drivers. It never writes.
type DocumentStore struct {
	client *firestore.Client
}

func NewDocumentStore(client *firestore.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Group(ctx context.Context, groupID string) (*event.Group, error) {
	doc, err := s.client.Collection("groups").Doc(groupID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("group %s lookup failed: %w", groupID, err)
	}
	var group event.Group
	if err := doc.DataTo(&group); err != nil {
		return nil, fmt.Errorf("group %s has unexpected shape: %w", groupID, err)
	}
	return &group, nil
}

func (s *DocumentStore) Ride(ctx context.Context, rideID string) (*event.Ride, error) {
	doc, err := s.client.Collection("rides").Doc(rideID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ride %s lookup failed: %w", rideID, err)
	}
	var ride event.Ride
	if err := doc.DataTo(&ride); err != nil {
		return nil, fmt.Errorf("ride %s has unexpected shape: %w", rideID, err)
	}
	return &ride, nil
}
