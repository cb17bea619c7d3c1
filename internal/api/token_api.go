package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tripwise-app/go-ride-notifier/pkg/dispatch"
	"github.com/tripwise-app/go-ride-notifier/pkg/notification"
)

// TokenAPI is the device registration surface. Registration is the only
// way tokens come to exist; the dispatch engine itself only reads and
// prunes them.
type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger,
	}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// --- DOOR A: Mobile (FCM / APNs) ---

func (api *TokenAPI) RegisterFCM(w http.ResponseWriter, r *http.Request) {
	api.registerToken(w, r, notification.PlatformFCM)
}

func (api *TokenAPI) RegisterAPNS(w http.ResponseWriter, r *http.Request) {
	api.registerToken(w, r, notification.PlatformAPNS)
}

func (api *TokenAPI) registerToken(w http.ResponseWriter, r *http.Request, platform notification.Platform) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.RegisterToken(ctx, userID, req.Token, platform); err != nil {
		api.Logger.Error("failed to register token", "platform", platform, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	// Log but don't fail hard; unregister should be idempotent.
	if err := api.Store.DeleteTokens(ctx, userID, []string{req.Token}); err != nil {
		api.Logger.Warn("failed to unregister token", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- DOOR B: Web (VAPID) ---

func (api *TokenAPI) RegisterWeb(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var sub notification.WebPushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		api.Logger.Error("RegisterWeb: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}

	if sub.Endpoint == "" || len(sub.Keys.P256dh) == 0 || len(sub.Keys.Auth) == 0 {
		api.Logger.Warn("RegisterWeb: validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	if err := api.Store.RegisterWeb(ctx, userID, sub); err != nil {
		api.Logger.Error("failed to register web subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("RegisterWeb: subscription registered", "user", userID, "endpoint", sub.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}

type unregisterWebRequest struct {
	Endpoint string `json:"endpoint"`
}

func (api *TokenAPI) UnregisterWeb(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req unregisterWebRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Error("UnregisterWeb: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing endpoint")
		return
	}

	if err := api.Store.UnregisterWeb(ctx, userID, req.Endpoint); err != nil {
		api.Logger.Warn("failed to unregister web subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister web")
		return
	}
	api.Logger.Info("UnregisterWeb: subscription unregistered", "user", userID, "endpoint", req.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}
