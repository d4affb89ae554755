package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"duet/internal/auth"
	"duet/internal/models"
	"duet/internal/pipeline"
)

type contextKey string

const userIDKey contextKey = "userID"

type tokenVerifier interface {
	Verify(token string) (string, error)
}

type chatReader interface {
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	ListChatRooms(ctx context.Context, userID string) ([]models.ChatRoomSummary, error)
	ListFriends(ctx context.Context, userID string) ([]models.Profile, error)
}

type messageSender interface {
	Send(ctx context.Context, req pipeline.SendRequest) (models.Message, error)
}

type presenceLister interface {
	Online() []string
}

type API struct {
	auth     tokenVerifier
	store    chatReader
	sender   messageSender
	presence presenceLister
}

func New(auth tokenVerifier, store chatReader, sender messageSender, presence presenceLister) *API {
	return &API{
		auth:     auth,
		store:    store,
		sender:   sender,
		presence: presence,
	}
}

// RequireAuth rejects requests without a valid bearer token and passes
// the verified user id down in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.Verify(auth.BearerToken(r))
		if err != nil {
			writeErr(w, "Unauthorized", err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.store.ListChatRooms(r.Context(), userIDFrom(r))
	if err != nil {
		writeErr(w, "Failed to list chats", err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")
	if !models.IsParticipant(userIDFrom(r), chatID) {
		writeError(w, http.StatusForbidden, "Not a participant of this chat")
		return
	}

	messages, err := a.store.ListMessages(r.Context(), chatID)
	if err != nil {
		writeErr(w, "Failed to list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	userID := userIDFrom(r)
	msg, err := a.sender.Send(r.Context(), pipeline.SendRequest{
		ChatID:      r.PathValue("chatId"),
		SenderID:    userID,
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeErr(w, "Failed to send message", err)
		return
	}

	slog.Debug("message sent", "chat_id", msg.ChatID, "user_id", userID, "message_id", msg.ID)
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) FriendsHandler(w http.ResponseWriter, r *http.Request) {
	friends, err := a.store.ListFriends(r.Context(), userIDFrom(r))
	if err != nil {
		writeErr(w, "Failed to list friends", err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (a *API) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.presence.Online())
}
