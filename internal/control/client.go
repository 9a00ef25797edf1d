package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/quickscreen/internal/session"
)

// Client is the controller side of a control connection.
type Client struct {
	conn *websocket.Conn
}

// Connect dials the given WebSocket URL. The URL should include the PIN as
// a query parameter, e.g.:
//
//	ws://192.168.1.20:7300/ws?pin=1234
func Connect(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send delivers a command to the session.
func (c *Client) Send(cmd session.Command) error {
	data, err := encode(FromCommand(cmd))
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Receive blocks until the next session event. Once the server closes the
// connection it returns the WebSocket close error.
func (c *Client) Receive() (session.Event, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return session.Event{}, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}

		msg, err := decode(data)
		if err != nil {
			return session.Event{}, err
		}
		return msg.Event()
	}
}

// Close ends the control connection.
func (c *Client) Close() error {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return errors.Join(err, c.conn.Close())
}
