package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"duet/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", "tok-a")
}

func TestClient_SendsBearerAndDecodes(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "Bearer tok-a", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/chats/a1-b2/messages":
			if r.Method == http.MethodPost {
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				require.Equal(t, "hi", body["content"])
				require.NotNil(t, body["attachments"])
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"m1","chatId":"a1-b2","sender":"a1","content":"hi","attachments":[]}`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"m1","chatId":"a1-b2","sender":{"id":"a1","displayName":"Alice"},"content":"hi"}]`))
		case "/api/presence":
			_, _ = w.Write([]byte(`["a1","b2"]`))
		default:
			http.NotFound(w, r)
		}
	})

	msgs, err := c.ListMessages(context.Background(), "a1-b2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Sender.IsInline())

	msg, err := c.SendMessage(context.Background(), "a1-b2", models.Draft{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "a1", msg.Sender.UserID())

	online, err := c.Presence(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b2"}, online)
	require.Equal(t, 3, calls)
}

func TestClient_NormalizesErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chats":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized","status":401,"details":["token expired"]}`))
		case "/api/friends":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	_, err := c.ListChatRooms(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, []string{"token expired"}, apiErr.Details)
	require.ErrorIs(t, err, models.ErrAuthentication)

	_, err = c.ListFriends(context.Background())
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "boom", apiErr.Message)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	_, err = c.SendMessage(context.Background(), "a1-b2", models.Draft{})
	require.ErrorIs(t, err, models.ErrProtocol)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusText(http.StatusBadRequest), apiErr.Message)
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	c := New(ts.URL, "tok")
	ts.Close()

	_, err := c.ListFriends(context.Background())
	require.ErrorIs(t, err, models.ErrTransport)
}
