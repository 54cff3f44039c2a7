// Package rest is the HTTP side of the sync protocol: acknowledgement
// writes and the full-state fetches used for resync after the retry queue
// gives up.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chirpsocial/chirp/internal/state"
	"github.com/chirpsocial/chirp/internal/wire"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

// IsAuthError reports whether err is a 401 or 403 response. These are not
// retryable; the session is over until the user signs in again.
func IsAuthError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden)
}

// Client talks to the app's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

func New(baseURL string, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MarkMessageRead acknowledges a single message as read.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/messages/"+messageID+"/read", nil, nil)
}

// MarkMessageDelivered acknowledges receipt of a message.
func (c *Client) MarkMessageDelivered(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/messages/"+messageID+"/delivered", nil, nil)
}

// MarkChatRead acknowledges every message in a chat as read.
func (c *Client) MarkChatRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/chats/"+chatID+"/read", nil, nil)
}

// MarkNotificationRead acknowledges a notification's read lifecycle.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+notificationID+"/read", nil, nil)
}

// MarkNotificationsSeen acknowledges the seen lifecycle for all notifications.
func (c *Client) MarkNotificationsSeen(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/seen", nil, nil)
}

type countsResponse struct {
	UnreadNotifications int            `json:"unreadNotifications"`
	UnseenNotifications int            `json:"unseenNotifications"`
	ChatUnread          map[string]int `json:"chatUnread"`
}

// FetchCounts returns the server-authoritative counters.
func (c *Client) FetchCounts(ctx context.Context) (state.Counts, error) {
	var out countsResponse
	if err := c.do(ctx, http.MethodGet, "/sync/counts", nil, &out); err != nil {
		return state.Counts{}, err
	}
	return state.Counts{
		UnreadNotifications: out.UnreadNotifications,
		UnseenNotifications: out.UnseenNotifications,
		ChatUnread:          out.ChatUnread,
	}, nil
}

// FetchChats returns the full authoritative chat list.
func (c *Client) FetchChats(ctx context.Context) ([]wire.Chat, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &raw); err != nil {
		return nil, err
	}
	chats := make([]wire.Chat, 0, len(raw))
	for _, r := range raw {
		chat, err := wire.DecodeChat(r)
		if err != nil {
			c.logger.Warn("skipping malformed chat in list", zap.Error(err))
			continue
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// FetchNotifications returns the full authoritative notification list.
func (c *Client) FetchNotifications(ctx context.Context) ([]wire.Notification, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &raw); err != nil {
		return nil, err
	}
	ns := make([]wire.Notification, 0, len(raw))
	for _, r := range raw {
		n, err := wire.DecodeNotification(r)
		if err != nil {
			c.logger.Warn("skipping malformed notification in list", zap.Error(err))
			continue
		}
		ns = append(ns, n)
	}
	return ns, nil
}

type sendMessageRequest struct {
	ClientID string `json:"clientId"`
	ChatID   string `json:"chatId"`
	Content  string `json:"content"`
}

// SendMessage posts a new message. The returned message is the
// authoritative copy carrying the server id.
func (c *Client) SendMessage(ctx context.Context, clientID, chatID, content string) (wire.Message, error) {
	var raw json.RawMessage
	req := sendMessageRequest{ClientID: clientID, ChatID: chatID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/messages", req, &raw); err != nil {
		return wire.Message{}, err
	}
	return wire.DecodeMessage(raw)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

type toggleResponse struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// SetToggle writes a toggle (like, follow, bookmark) and returns the
// server-confirmed state.
func (c *Client) SetToggle(ctx context.Context, kind state.ToggleKind, targetID string, active bool) (state.ToggleState, error) {
	var out toggleResponse
	path := fmt.Sprintf("/%ss/%s", string(kind), targetID)
	if err := c.do(ctx, http.MethodPut, path, toggleRequest{Active: active}, &out); err != nil {
		return state.ToggleState{}, err
	}
	return state.ToggleState{Active: out.Active, Count: out.Count}, nil
}
