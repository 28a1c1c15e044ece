package nodeify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrDenied is returned when the server rejects the token at connect.
var ErrDenied = errors.New("incorrect credentials")

// Push is a message delivered to a listening client.
type Push struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Sent    string `json:"sent"`
}

// ServerError is an error frame the server sent on the socket.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }

// websocketURL converts the HTTP base URL to the handshake URL for token.
func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(c.Token)
	return u.String(), nil
}

// Listen connects as the token's owner and calls fn for every push,
// starting with any backlog, until ctx is cancelled or the connection ends.
// Error frames other than a denial are passed to onError, which may be nil.
func (c *Client) Listen(ctx context.Context, fn func(Push), onError func(error)) error {
	target, err := c.websocketURL()
	if err != nil {
		return err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return ErrDenied
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var frame struct {
			Push
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			if frame.Error == ErrDenied.Error() {
				return ErrDenied
			}
			if onError != nil {
				onError(&ServerError{Message: frame.Error})
			}
			continue
		}
		fn(frame.Push)
	}
}
