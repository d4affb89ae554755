// Package client is the chat client library. A Client is created when a
// credential is obtained and closed on logout; it owns the REST client,
// the offline cache and the socket factory, and opens ChatViews.
package client

import (
	"context"
	"fmt"
	"strings"

	"duet/internal/client/cache"
	"duet/internal/client/rest"
	"duet/internal/client/scroll"
	"duet/internal/client/session"
	"duet/internal/client/transport"
	"duet/internal/models"
	"duet/internal/storage"
)

type Config struct {
	// ServerURL is the API base, e.g. http://localhost:8080.
	ServerURL string
	Token     string
	UserID    string
	CacheFile string
	CacheTTLs cache.TTLs
}

type Client struct {
	userID    string
	token     string
	rest      *rest.Client
	cache     *cache.Cache
	cacheDB   *storage.BboltStorage
	newSocket func() session.Socket
}

func New(cfg Config) (*Client, error) {
	if cfg.Token == "" || cfg.UserID == "" {
		return nil, fmt.Errorf("%w: token and user id are required", models.ErrAuthentication)
	}
	if cfg.CacheTTLs == (cache.TTLs{}) {
		cfg.CacheTTLs = cache.DefaultTTLs
	}

	db, err := storage.NewBboltStorage(cfg.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	wsURL := socketURL(cfg.ServerURL)
	return &Client{
		userID:  cfg.UserID,
		token:   cfg.Token,
		rest:    rest.New(cfg.ServerURL, cfg.Token),
		cache:   cache.New(db, cfg.CacheTTLs),
		cacheDB: db,
		newSocket: func() session.Socket {
			return transport.New(wsURL)
		},
	}, nil
}

// Close disposes of the client. Open chat views must be closed first.
func (c *Client) Close() error {
	return c.cacheDB.Close()
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) REST() *rest.Client { return c.rest }

// ChatID returns the id of the chat with peerID.
func (c *Client) ChatID(peerID string) (string, error) {
	return models.DirectChatID(c.userID, peerID)
}

func (c *Client) Friends(ctx context.Context) <-chan cache.Result[[]models.Profile] {
	return c.cache.Friends().Query(ctx, c.userID, c.rest.ListFriends)
}

func (c *Client) ChatRooms(ctx context.Context) <-chan cache.Result[[]models.ChatRoomSummary] {
	return c.cache.ChatRooms().Query(ctx, c.userID, c.rest.ListChatRooms)
}

// OpenChat opens the conversation with peerID. scroller may be nil.
func (c *Client) OpenChat(ctx context.Context, peerID string, scroller scroll.Scroller) (*ChatView, error) {
	chatID, err := c.ChatID(peerID)
	if err != nil {
		return nil, err
	}
	return newChatView(ctx, c, chatID, scroller), nil
}

func socketURL(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/chat"
}
