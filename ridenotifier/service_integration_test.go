//go:build integration

package ridenotifier_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	fsStore "github.com/tripwise-app/go-ride-notifier/internal/storage/firestore"
	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/event"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
	"github.com/tripwise-app/go-ride-notifier/ridenotifier"
	"github.com/tripwise-app/go-ride-notifier/ridenotifier/config"
)

// --- MOCKS ---

type mockDispatcher struct {
	mu         sync.Mutex
	callCount  int
	lastTokens []string
	results    func(tokens []string) []dispatch.Result
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{
		results: func(tokens []string) []dispatch.Result {
			res := make([]dispatch.Result, len(tokens))
			for i := range res {
				res[i] = dispatch.Result{Success: true}
			}
			return res
		},
	}
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tokens []string, content notification.Content, data map[string]string) ([]dispatch.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastTokens = tokens
	return m.results(tokens), nil
}

func (m *mockDispatcher) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockDispatcher) GetLastTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTokens
}

// --- TEST ---

func TestRideNotifier_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { fsClient.Close() })

	tokenStore := fsStore.NewTokenStore(fsClient)
	docStore := fsStore.NewDocumentStore(fsClient)

	startService := func(t *testing.T, topicID string) (*mockDispatcher, func(evt *event.DocumentChange)) {
		t.Helper()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		fcmDispatcher := newMockDispatcher()

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := ridenotifier.New(
			&config.Config{
				ListenAddr:         ":0",
				NumPipelineWorkers: 2,
				InvalidTokenCodes:  []string{"registration-token-not-registered", "invalid-registration-token"},
			},
			consumer,
			fcmDispatcher,
			nil, // no APNs path in this test
			nil, // no web path in this test
			tokenStore,
			docStore,
			docStore,
			func(h http.Handler) http.Handler { return h },
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() {
			svcCancel()
			_ = svc.Shutdown(context.Background())
		})

		publish := func(evt *event.DocumentChange) {
			payload, err := json.Marshal(evt)
			require.NoError(t, err)
			_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
			require.NoError(t, err)
		}
		return fcmDispatcher, publish
	}

	t.Run("Full Lifecycle: Register -> Event -> Dispatch", func(t *testing.T) {
		topicID := "doc-changes-" + uuid.NewString()
		fcmDispatcher, publish := startService(t, topicID)

		require.NoError(t, tokenStore.RegisterToken(ctx, "driver-1", "android-token-999", notification.PlatformFCM))

		booking, err := json.Marshal(map[string]string{
			"driverId":      "driver-1",
			"passengerName": "Amira",
			"rideId":        "ride-1",
		})
		require.NoError(t, err)
		publish(&event.DocumentChange{
			Kind:   event.KindBookingCreated,
			Params: map[string]string{"bookingId": "b-1"},
			After:  booking,
		})

		require.Eventually(t, func() bool {
			return fcmDispatcher.GetCallCount() == 1
		}, 15*time.Second, 100*time.Millisecond)

		assert.Equal(t, []string{"android-token-999"}, fcmDispatcher.GetLastTokens())
	})

	t.Run("Dead Tokens Are Pruned After Dispatch", func(t *testing.T) {
		topicID := "doc-changes-" + uuid.NewString()
		fcmDispatcher, publish := startService(t, topicID)

		require.NoError(t, tokenStore.RegisterToken(ctx, "driver-2", "token-alive", notification.PlatformFCM))
		require.NoError(t, tokenStore.RegisterToken(ctx, "driver-2", "token-dead", notification.PlatformFCM))

		fcmDispatcher.mu.Lock()
		fcmDispatcher.results = func(tokens []string) []dispatch.Result {
			res := make([]dispatch.Result, len(tokens))
			for i, token := range tokens {
				if token == "token-dead" {
					res[i] = dispatch.Result{Err: fmt.Errorf("messaging/registration-token-not-registered")}
				} else {
					res[i] = dispatch.Result{Success: true}
				}
			}
			return res
		}
		fcmDispatcher.mu.Unlock()

		booking, err := json.Marshal(map[string]string{"driverId": "driver-2", "rideId": "ride-2"})
		require.NoError(t, err)
		publish(&event.DocumentChange{
			Kind:   event.KindBookingCreated,
			Params: map[string]string{"bookingId": "b-2"},
			After:  booking,
		})

		require.Eventually(t, func() bool {
			devices, err := tokenStore.Fetch(ctx, "driver-2")
			if err != nil {
				return false
			}
			return len(devices.FCMTokens) == 1 && devices.FCMTokens[0] == "token-alive"
		}, 15*time.Second, 200*time.Millisecond)
	})

	t.Run("Group Message Fans Out To Members Except Sender", func(t *testing.T) {
		topicID := "doc-changes-" + uuid.NewString()
		fcmDispatcher, publish := startService(t, topicID)

		_, err := fsClient.Collection("groups").Doc("g-integ").Set(ctx, map[string]interface{}{
			"memberIds": []string{"member-a", "member-b", "sender-x"},
		})
		require.NoError(t, err)
		require.NoError(t, tokenStore.RegisterToken(ctx, "member-a", "token-a", notification.PlatformFCM))
		require.NoError(t, tokenStore.RegisterToken(ctx, "member-b", "token-b", notification.PlatformFCM))
		require.NoError(t, tokenStore.RegisterToken(ctx, "sender-x", "token-x", notification.PlatformFCM))

		message, err := json.Marshal(map[string]string{
			"senderId":   "sender-x",
			"senderName": "Karim",
			"message":    "On part à 8h",
		})
		require.NoError(t, err)
		publish(&event.DocumentChange{
			Kind:   event.KindGroupMessageCreated,
			Params: map[string]string{"groupId": "g-integ", "messageId": "m-1"},
			After:  message,
		})

		// One Dispatch call per recipient; the sender's token never shows up.
		require.Eventually(t, func() bool {
			return fcmDispatcher.GetCallCount() == 2
		}, 15*time.Second, 100*time.Millisecond)
		assert.NotContains(t, fcmDispatcher.GetLastTokens(), "token-x")
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
