package api

import (
	"context"
	"encoding/json"
	"net/http"

	"duet/internal/content"
	"duet/internal/models"
)

type profileAdmin interface {
	UpsertProfile(ctx context.Context, profile models.Profile) error
	DeleteProfile(ctx context.Context, userID string) error
}

type AdminHandler struct {
	profiles profileAdmin
}

func NewAdminHandler(profiles profileAdmin) *AdminHandler {
	return &AdminHandler{profiles: profiles}
}

type AddUserRequest struct {
	ID          string `json:"id"`
	UserName    string `json:"userName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := content.ValidateUserID(req.ID); err != nil {
		writeErr(w, "Invalid user id", err)
		return
	}

	profile := models.Profile{
		ID:          req.ID,
		UserName:    req.UserName,
		DisplayName: content.Sanitize(req.DisplayName),
		AvatarURL:   req.AvatarURL,
	}
	if profile.UserName == "" {
		profile.UserName = req.ID
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.UserName
	}

	if err := h.profiles.UpsertProfile(r.Context(), profile); err != nil {
		writeErr(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	if err := h.profiles.DeleteProfile(r.Context(), userID); err != nil {
		writeErr(w, "Failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
