// Package rest is the HTTP client of the chat API. Every non-2xx
// response becomes an *APIError; nothing is retried.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duet/internal/models"
)

// APIError is the uniform shape of a failed request.
type APIError struct {
	Message    string   `json:"message"`
	StatusCode int      `json:"status"`
	Details    []string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Message, e.StatusCode, strings.Join(e.Details, "; "))
}

// Unwrap maps the status code onto the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return models.ErrAuthentication
	case http.StatusBadRequest:
		return models.ErrProtocol
	case http.StatusNotFound:
		return models.ErrNotFound
	}
	return nil
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ListChatRooms(ctx context.Context) ([]models.ChatRoomSummary, error) {
	var rooms []models.ChatRoomSummary
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, &rooms)
	return rooms, err
}

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, &msgs)
	return msgs, err
}

func (c *Client) ListFriends(ctx context.Context) ([]models.Profile, error) {
	var friends []models.Profile
	err := c.do(ctx, http.MethodGet, "/api/friends", nil, &friends)
	return friends, err
}

func (c *Client) Presence(ctx context.Context) ([]string, error) {
	var online []string
	err := c.do(ctx, http.MethodGet, "/api/presence", nil, &online)
	return online, err
}

type sendRequest struct {
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
}

func (c *Client) SendMessage(ctx context.Context, chatID string, draft models.Draft) (models.Message, error) {
	var msg models.Message
	body := sendRequest{Content: draft.Content, Attachments: draft.Attachments}
	if body.Attachments == nil {
		body.Attachments = []models.Attachment{}
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", body, &msg)
	return msg, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
