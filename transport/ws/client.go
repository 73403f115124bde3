// Package ws exposes the routing core over websocket connections. One
// Client per live connection; a user may hold several concurrently.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
)

var _ contract.EventSink = (*Client)(nil)

// ConnLike is the subset of a websocket connection the client needs.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Client wraps one websocket connection. Outbound frames go through a
// buffered channel so a slow reader never blocks a broadcast; frames
// are dropped when the buffer is full.
type Client struct {
	ID   domain.ConnectionID
	User domain.UserRef
	conn ConnLike
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(id domain.ConnectionID, user domain.UserRef, conn ConnLike, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		ID:   id,
		User: user,
		conn: conn,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
		log:  log,
	}
}

// Consume queues one outbound frame for the write pump. A registry
// broadcast may still hold this sink while the connection tears down,
// so after Close it reports the connection as unreachable instead of
// touching the channel.
func (c *Client) Consume(_ context.Context, frame event.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s is closed", c.ID)
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.log.Debug(fmt.Sprintf("Send buffer full for connection %s, dropping %s", c.ID, frame.Event))
		return nil
	}
}

// WritePump drains the send channel onto the wire. On Close it flushes
// whatever is already queued, then exits.
func (c *Client) WritePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed", "connection", c.ID, "error", err)
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// ReadPump reads inbound frames and hands them to dispatch until the
// connection drops.
func (c *Client) ReadPump(ctx context.Context, dispatch func(ctx context.Context, c *Client, data []byte)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		dispatch(ctx, c, data)
	}
}

// Close is idempotent. The send channel is never closed, late Consume
// calls see the closed flag instead of a send on a closed channel.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	_ = c.conn.Close()
}
