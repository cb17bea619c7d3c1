// Package firestore implements the device token store and the auxiliary
// document readers on Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// TokenStore implements dispatch.TokenStore.
//
// Device tokens live at users/{userID}/fcmTokens/{token}: the token
// string is the document id, so registration is a natural upsert and
// the store cannot hold duplicates. Web subscriptions live at
// users/{userID}/webSubscriptions/{sha256(endpoint)} because endpoint
// URLs are not valid document ids.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

type tokenRecord struct {
	Platform  string    `firestore:"platform"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type webRecord struct {
	Subscription *notification.WebPushSubscription `firestore:"subscription"`
	UpdatedAt    time.Time                         `firestore:"updatedAt"`
}

func (s *TokenStore) RegisterToken(ctx context.Context, userID, token string, platform notification.Platform) error {
	record := tokenRecord{
		Platform:  string(platform),
		UpdatedAt: time.Now(),
	}
	_, err := s.tokensCollection(userID).Doc(token).Set(ctx, record)
	return err
}

func (s *TokenStore) RegisterWeb(ctx context.Context, userID string, sub notification.WebPushSubscription) error {
	record := webRecord{
		Subscription: &sub,
		UpdatedAt:    time.Now(),
	}
	_, err := s.webCollection(userID).Doc(hashEndpoint(sub.Endpoint)).Set(ctx, record)
	return err
}

func (s *TokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	_, err := s.webCollection(userID).Doc(hashEndpoint(endpoint)).Delete(ctx)
	return err
}

// DeleteTokens removes the given tokens in one BulkWriter batch. The
// batch is best effort: a failed delete is reported but already-applied
// deletions stand.
func (s *TokenStore) DeleteTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(tokens))
	for _, t := range tokens {
		job, err := bw.Delete(s.tokensCollection(userID).Doc(t))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue token delete: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("token batch delete had %d failures: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Fetch lists everything registered for a user, bucketed by platform.
// Token order follows the store's iteration order and is preserved as
// is; the dispatch engine relies on it for positional classification.
func (s *TokenStore) Fetch(ctx context.Context, userID string) (*notification.Devices, error) {
	devices := &notification.Devices{
		UserID:           userID,
		FCMTokens:        make([]string, 0),
		APNSTokens:       make([]string, 0),
		WebSubscriptions: make([]notification.WebPushSubscription, 0),
	}

	iter := s.tokensCollection(userID).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore token iteration failed: %w", err)
		}

		var record tokenRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped, not fatal.
			continue
		}
		if record.Platform == string(notification.PlatformAPNS) {
			devices.APNSTokens = append(devices.APNSTokens, doc.Ref.ID)
		} else {
			devices.FCMTokens = append(devices.FCMTokens, doc.Ref.ID)
		}
	}

	webIter := s.webCollection(userID).Documents(ctx)
	defer webIter.Stop()
	for {
		doc, err := webIter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore subscription iteration failed: %w", err)
		}

		var record webRecord
		if err := doc.DataTo(&record); err != nil || record.Subscription == nil {
			continue
		}
		devices.WebSubscriptions = append(devices.WebSubscriptions, *record.Subscription)
	}

	return devices, nil
}

func (s *TokenStore) tokensCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("fcmTokens")
}

func (s *TokenStore) webCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("webSubscriptions")
}

func hashEndpoint(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}
