package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"duet/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeVerifier map[string]string

func (f fakeVerifier) Verify(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", models.ErrAuthentication
}

type fakeProfiles struct {
	mu      sync.Mutex
	touched map[string]int
}

func (f *fakeProfiles) TouchProfile(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[userID]++
	return nil
}

func (f *fakeProfiles) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched[userID]
}

func newTestServer(t *testing.T) (*Hub, *fakeProfiles, string) {
	t.Helper()
	hub := NewHub()
	profiles := &fakeProfiles{touched: make(map[string]int)}
	srv := NewServer(fakeVerifier{"tok-a": "a1", "tok-b": "b2"}, hub, profiles)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnections))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return hub, profiles, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func readUntil(t *testing.T, conn *websocket.Conn, want models.ServerEventType) models.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var evt models.ServerEvent
		require.NoError(t, conn.ReadJSON(&evt))
		if evt.Type == want {
			return evt
		}
	}
}

func TestServer_RejectsBadToken(t *testing.T) {
	_, _, url := newTestServer(t)

	for _, target := range []string{url, url + "?token=nope"} {
		_, resp, err := websocket.DefaultDialer.Dial(target, nil)
		require.True(t, errors.Is(err, websocket.ErrBadHandshake), "dial %s: %v", target, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestServer_RoomFlow(t *testing.T) {
	hub, profiles, url := newTestServer(t)

	alice, _, err := websocket.DefaultDialer.Dial(url+"?token=tok-a", nil)
	require.NoError(t, err)
	defer alice.Close()
	require.Eventually(t, func() bool {
		return len(hub.Online()) == 1
	}, time.Second, 10*time.Millisecond)

	header := http.Header{}
	header.Set("Authorization", "Bearer tok-b")
	bob, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer bob.Close()

	evt := readUntil(t, alice, models.ServerEventUserOnline)
	require.Equal(t, "b2", evt.UserID)

	require.NoError(t, bob.WriteJSON(models.ClientEvent{Type: models.ClientEventJoinChat, ChatID: "a1-b2"}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.rooms["a1-b2"]) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, alice.WriteJSON(models.ClientEvent{Type: models.ClientEventJoinChat, ChatID: "a1-b2"}))

	evt = readUntil(t, bob, models.ServerEventUserJoined)
	require.Equal(t, "a1", evt.UserID)
	require.Equal(t, "a1-b2", evt.ChatID)

	require.NoError(t, alice.WriteJSON(models.ClientEvent{Type: models.ClientEventJoinChat}))
	evt = readUntil(t, alice, models.ServerEventError)
	require.Equal(t, models.ErrorCodeProtocol, evt.Error.Code)

	hub.Publish(models.Message{ID: "m1", ChatID: "a1-b2", Sender: models.SenderByID("a1"), Content: "hi"})
	for _, c := range []*websocket.Conn{alice, bob} {
		evt := readUntil(t, c, models.ServerEventChatMessage)
		require.Equal(t, "m1", evt.Message.ID)
	}

	require.NoError(t, alice.Close())
	evt = readUntil(t, bob, models.ServerEventUserLeft)
	require.Equal(t, "a1", evt.UserID)
	evt = readUntil(t, bob, models.ServerEventUserOffline)
	require.Equal(t, "a1", evt.UserID)

	require.Eventually(t, func() bool {
		return profiles.count("a1") == 2
	}, time.Second, 10*time.Millisecond)
}
