package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// Socket is one established pub/sub connection. The production
// implementation wraps a WebSocket; tests substitute in-memory pipes.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer establishes sockets. Injected so tests can fail or script
// connections without a network.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Socket, error)
}

// AuthError is the non-retryable failure class: the server rejected our
// credential. Reconnecting with the same token would only burn the backoff
// schedule and trip rate limits.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization rejected (status %d)", e.Status)
}

// IsAuthError reports whether err is an authorization-class failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// closeStatusAuthRejected is the application close code the backend sends
// when it tears down a session whose token expired mid-connection.
const closeStatusAuthRejected = websocket.StatusCode(4401)

type wsDialer struct{}

// NewDialer returns the production WebSocket dialer.
func NewDialer() Dialer {
	return wsDialer{}
}

func (wsDialer) Dial(ctx context.Context, url, token string) (Socket, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsSocket{conn: c}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == closeStatusAuthRejected {
			return nil, &AuthError{Status: int(closeStatusAuthRejected)}
		}
		return nil, err
	}
	return data, nil
}

func (s *wsSocket) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
