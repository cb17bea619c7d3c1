package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tripwise-app/go-ride-notifier/internal/api"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// --- Mocks ---

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) RegisterToken(ctx context.Context, userID, token string, platform notification.Platform) error {
	return m.Called(ctx, userID, token, platform).Error(0)
}

func (m *MockTokenStore) RegisterWeb(ctx context.Context, userID string, sub notification.WebPushSubscription) error {
	return m.Called(ctx, userID, sub).Error(0)
}

func (m *MockTokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	return m.Called(ctx, userID, endpoint).Error(0)
}

func (m *MockTokenStore) DeleteTokens(ctx context.Context, userID string, tokens []string) error {
	return m.Called(ctx, userID, tokens).Error(0)
}

func (m *MockTokenStore) Fetch(ctx context.Context, userID string) (*notification.Devices, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Devices), args.Error(1)
}

// --- Setup ---

func setupAPI(t *testing.T) (*api.TokenAPI, *MockTokenStore) {
	t.Helper()
	mockStore := new(MockTokenStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewTokenAPI(mockStore, logger), mockStore
}

// withUser injects the user id the auth middleware would have resolved.
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

// --- Tests ---

func TestRegisterFCM(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": "fcm-token-abc"})

		req := withUser(httptest.NewRequest("POST", "/api/v1/register/fcm", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("RegisterToken", mock.Anything, "user-123", "fcm-token-abc", notification.PlatformFCM).Return(nil)

		apiHandler.RegisterFCM(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects Empty Token", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": ""})
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/fcm", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		apiHandler.RegisterFCM(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Missing Auth Context", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": "fcm-token-abc"})
		req := httptest.NewRequest("POST", "/api/v1/register/fcm", bytes.NewReader(body))
		w := httptest.NewRecorder()

		apiHandler.RegisterFCM(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Storage Failure Surfaces As 500", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": "fcm-token-abc"})
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/fcm", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("RegisterToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(assert.AnError)

		apiHandler.RegisterFCM(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRegisterAPNS(t *testing.T) {
	apiHandler, mockStore := setupAPI(t)
	body, _ := json.Marshal(map[string]string{"token": "apns-token-abc"})

	req := withUser(httptest.NewRequest("POST", "/api/v1/register/apns", bytes.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	mockStore.On("RegisterToken", mock.Anything, "user-123", "apns-token-abc", notification.PlatformAPNS).Return(nil)

	apiHandler.RegisterAPNS(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockStore.AssertExpectations(t)
}

func TestUnregisterToken(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": "fcm-token-abc"})
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/fcm", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("DeleteTokens", mock.Anything, "user-123", []string{"fcm-token-abc"}).Return(nil)

		apiHandler.UnregisterToken(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Idempotent - Storage Failure Still Returns 204", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"token": "fcm-token-abc"})
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/fcm", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("DeleteTokens", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

		apiHandler.UnregisterToken(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRegisterWeb(t *testing.T) {
	validSub := notification.WebPushSubscription{Endpoint: "https://fcm.googleapis.com/fcm/send/xyz"}
	validSub.Keys.P256dh = "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM"
	validSub.Keys.Auth = "tBHItJI5svbpez7KI4CCXg"

	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(validSub)
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/web", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("RegisterWeb", mock.Anything, "user-123", validSub).Return(nil)

		apiHandler.RegisterWeb(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Accepts Browser base64url Keys", func(t *testing.T) {
		// PushManager hands keys base64url-encoded; '-' and '_' must
		// survive the round trip into the stored subscription.
		apiHandler, mockStore := setupAPI(t)
		browserPayload := `{
			"endpoint": "https://updates.push.services.mozilla.com/wpush/v2/abc",
			"keys": {
				"p256dh": "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
				"auth": "zqbxT6JKstKSY9JKibZLSQ"
			}
		}`
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/web", bytes.NewReader([]byte(browserPayload))), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("RegisterWeb", mock.Anything, "user-123", mock.MatchedBy(func(sub notification.WebPushSubscription) bool {
			return sub.Keys.P256dh == "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM" &&
				sub.Keys.Auth == "zqbxT6JKstKSY9JKibZLSQ"
		})).Return(nil)

		apiHandler.RegisterWeb(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects Missing Keys (Invalid Object)", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		invalidPayload := `{"endpoint": "https://valid.com"}`
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/web", bytes.NewReader([]byte(invalidPayload))), "user-123")
		w := httptest.NewRecorder()

		apiHandler.RegisterWeb(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUnregisterWeb(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		body, _ := json.Marshal(map[string]string{"endpoint": "https://push.example.com/x"})
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/web", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockStore.On("UnregisterWeb", mock.Anything, "user-123", "https://push.example.com/x").Return(nil)

		apiHandler.UnregisterWeb(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects Missing Endpoint", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/web", bytes.NewReader([]byte(`{}`))), "user-123")
		w := httptest.NewRecorder()

		apiHandler.UnregisterWeb(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
