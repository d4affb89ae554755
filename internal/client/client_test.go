package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"duet/internal/auth"
	"duet/internal/client/session"
	duethttp "duet/internal/http"
	"duet/internal/models"
	"duet/internal/pipeline"
	"duet/internal/storage"
	"duet/internal/ws"

	"github.com/stretchr/testify/require"
)

type stack struct {
	url  string
	auth *auth.AuthService
}

func newStack(t *testing.T) stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Secret: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))),
	})
	require.NoError(t, err)

	hub := ws.NewHub()
	pipe := pipeline.New(store, hub, nil)
	srv := duethttp.NewAPIServer(authService, hub, store, pipe, "")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = pipe.Close()
	})

	return stack{url: ts.URL, auth: authService}
}

func (s stack) client(t *testing.T, userID string) *Client {
	t.Helper()
	token, _, err := s.auth.IssueToken(userID)
	require.NoError(t, err)

	c, err := New(Config{
		ServerURL: s.url,
		Token:     token,
		UserID:    userID,
		CacheFile: filepath.Join(t.TempDir(), userID+".cache"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_RequiresCredential(t *testing.T) {
	_, err := New(Config{ServerURL: "http://localhost", UserID: "a1"})
	require.ErrorIs(t, err, models.ErrAuthentication)
}

func TestSocketURL(t *testing.T) {
	require.Equal(t, "ws://localhost:8080/api/chat", socketURL("http://localhost:8080/"))
	require.Equal(t, "wss://chat.example.com/api/chat", socketURL("https://chat.example.com"))
}

func TestOpenChat_RejectsAmbiguousPeer(t *testing.T) {
	c, err := New(Config{
		ServerURL: "http://localhost",
		Token:     "t",
		UserID:    "a1",
		CacheFile: filepath.Join(t.TempDir(), "c.cache"),
	})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.OpenChat(context.Background(), "b-2", nil)
	require.ErrorIs(t, err, models.ErrAmbiguousParticipant)
}

func TestChatView_SendAndReceive(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	alice := s.client(t, "a1")
	bob := s.client(t, "b2")

	av, err := alice.OpenChat(ctx, "b2", nil)
	require.NoError(t, err)
	defer av.Close()
	bv, err := bob.OpenChat(ctx, "a1", nil)
	require.NoError(t, err)
	defer bv.Close()

	require.Equal(t, "a1-b2", av.ChatID())
	require.Equal(t, av.ChatID(), bv.ChatID())

	require.Eventually(t, func() bool {
		return av.Status() == session.StateConnected && bv.Status() == session.StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	updates := make(chan []models.Message, 16)
	unsubscribe := av.OnMessages(func(msgs []models.Message) {
		select {
		case updates <- msgs:
		default:
		}
	})
	defer unsubscribe()

	bv.SetDraft("hi")
	sent, err := bv.Send(ctx)
	require.NoError(t, err)
	require.Equal(t, "hi", sent.Content)
	require.True(t, bv.Draft().Empty(), "draft is cleared after a successful send")

	require.Eventually(t, func() bool {
		msgs := av.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID
	}, 5*time.Second, 10*time.Millisecond)

	timeout := time.After(time.Second)
	for delivered := false; !delivered; {
		select {
		case msgs := <-updates:
			delivered = len(msgs) > 0
		case <-timeout:
			t.Fatal("no update delivered to subscriber")
		}
	}

	// Sending twice from the same view keeps order by creation time.
	bv.SetDraft("again")
	second, err := bv.Send(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs := av.Messages()
		return len(msgs) == 2 && msgs[1].ID == second.ID
	}, 5*time.Second, 10*time.Millisecond)
}

func TestChatView_FailedSendKeepsDraft(t *testing.T) {
	s := newStack(t)

	c, err := New(Config{
		ServerURL: s.url,
		Token:     "not-a-token",
		UserID:    "a1",
		CacheFile: filepath.Join(t.TempDir(), "a1.cache"),
	})
	require.NoError(t, err)
	defer c.Close()

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)
	defer v.Close()

	v.SetDraft("keep me")
	v.Attach(models.Attachment{Kind: models.AttachmentKindLink, URL: "https://example.com"})

	_, err = v.Send(context.Background())
	require.ErrorIs(t, err, models.ErrAuthentication)

	d := v.Draft()
	require.Equal(t, "keep me", d.Content)
	require.Len(t, d.Attachments, 1)

	require.Eventually(t, func() bool {
		return v.Status() == session.StateError
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, v.LastError(), models.ErrAuthentication)
}

func TestChatView_EmptyDraft(t *testing.T) {
	s := newStack(t)
	c := s.client(t, "a1")

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)
	defer v.Close()

	v.SetDraft("   ")
	_, err = v.Send(context.Background())
	require.ErrorIs(t, err, models.ErrProtocol)
	require.Equal(t, "   ", v.Draft().Content)
}

func TestChatView_CloseIsIdempotent(t *testing.T) {
	s := newStack(t)
	c := s.client(t, "a1")

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)

	v.Close()
	v.Close()
	require.Equal(t, session.StateIdle, v.Status())
}

func unreachableClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		ServerURL: "http://127.0.0.1:1",
		Token:     "t",
		UserID:    "a1",
		CacheFile: filepath.Join(t.TempDir(), "a1.cache"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func liveMessage(id string) models.Message {
	return models.Message{
		ID:        id,
		ChatID:    "a1-b2",
		Sender:    models.SenderByID("b2"),
		Content:   "live " + id,
		CreatedAt: time.Now().UTC(),
	}
}

func TestChatView_LiveMessageDoesNotCreateCacheEntry(t *testing.T) {
	c := unreachableClient(t)

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)
	defer v.Close()

	require.Eventually(t, func() bool { return v.LoadError() != nil }, 5*time.Second, 10*time.Millisecond)

	v.apply([]models.Message{liveMessage("m3")})
	require.Len(t, v.Messages(), 1)

	_, ok := c.cache.Messages().Load(v.ChatID())
	require.False(t, ok, "a live message must not create a history entry")
}

func TestChatView_LiveMessageDoesNotRefreshCacheEntry(t *testing.T) {
	c := unreachableClient(t)

	payload, err := json.Marshal([]models.Message{liveMessage("m1")})
	require.NoError(t, err)
	seeded := storage.DBCacheEntry{
		CacheKey:  "messages:a1-b2",
		Payload:   payload,
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}
	require.NoError(t, c.cacheDB.PutCacheEntry(seeded))

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)
	defer v.Close()

	require.Eventually(t, func() bool { return v.LoadError() != nil }, 5*time.Second, 10*time.Millisecond)
	require.Len(t, v.Messages(), 1, "cached history is shown when the refresh fails")

	v.apply([]models.Message{liveMessage("m2")})
	require.Len(t, v.Messages(), 2)

	entry, err := c.cacheDB.GetCacheEntry("messages:a1-b2")
	require.NoError(t, err)
	require.Equal(t, seeded.ExpiresAt, entry.ExpiresAt)
	require.Equal(t, seeded.Payload, entry.Payload)
}

func TestChatView_SendKeepsEditsMadeInFlight(t *testing.T) {
	received := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/chats/a1-b2/messages":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
		case r.Method == http.MethodPost && r.URL.Path == "/api/chats/a1-b2/messages":
			close(received)
			<-release
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.Message{
				ID:          "m1",
				ChatID:      "a1-b2",
				Sender:      models.SenderByID("a1"),
				Content:     "first",
				Attachments: []models.Attachment{},
				CreatedAt:   time.Now().UTC(),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c, err := New(Config{
		ServerURL: ts.URL,
		Token:     "t",
		UserID:    "a1",
		CacheFile: filepath.Join(t.TempDir(), "a1.cache"),
	})
	require.NoError(t, err)
	defer c.Close()

	v, err := c.OpenChat(context.Background(), "b2", nil)
	require.NoError(t, err)
	defer v.Close()

	v.SetDraft("first")

	type result struct {
		msg models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := v.Send(context.Background())
		done <- result{msg, err}
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("send never reached the server")
	}

	v.SetDraft("first, and more")
	v.Attach(models.Attachment{Kind: models.AttachmentKindLink, URL: "https://example.com"})
	close(release)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "m1", res.msg.ID)

	d := v.Draft()
	require.Equal(t, ", and more", d.Content)
	require.Len(t, d.Attachments, 1)
	require.Equal(t, "https://example.com", d.Attachments[0].URL)
}

func TestWithoutSent(t *testing.T) {
	link := models.Attachment{Kind: models.AttachmentKindLink, URL: "https://example.com"}
	img := models.Attachment{Kind: models.AttachmentKindImage, URL: "https://cdn.example.com/x.png"}

	tests := []struct {
		name    string
		current models.Draft
		sent    models.Draft
		want    models.Draft
	}{
		{
			name:    "unchanged",
			current: models.Draft{Content: "hi", Attachments: []models.Attachment{link}},
			sent:    models.Draft{Content: "hi", Attachments: []models.Attachment{link}},
			want:    models.Draft{},
		},
		{
			name:    "replaced content",
			current: models.Draft{Content: "something else"},
			sent:    models.Draft{Content: "hi"},
			want:    models.Draft{Content: "something else"},
		},
		{
			name:    "appended attachment",
			current: models.Draft{Content: "hi", Attachments: []models.Attachment{link, img}},
			sent:    models.Draft{Content: "hi", Attachments: []models.Attachment{link}},
			want:    models.Draft{Attachments: []models.Attachment{img}},
		},
		{
			name:    "attachments swapped",
			current: models.Draft{Attachments: []models.Attachment{img}},
			sent:    models.Draft{Attachments: []models.Attachment{link}},
			want:    models.Draft{Attachments: []models.Attachment{img}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, withoutSent(tt.current, tt.sent))
		})
	}
}
