package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	eventBufferSize = 64
)

var ErrClosed = errors.New("signaling connection closed")

// SignalClient is the participant side of the relay's websocket protocol.
type SignalClient struct {
	conn     *websocket.Conn
	logger   hclog.Logger
	incoming chan types.WebsocketMessage
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

// WebsocketURL derives the websocket endpoint from a server base url: http becomes ws, https
// becomes wss and an empty path becomes /ws.
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme", serverURL)
	}
	if strings.TrimSuffix(u.Path, "/") == "" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial connects to the relay. serverURL is either the server's base url or the websocket url.
func Dial(ctx context.Context, serverURL string, logger hclog.Logger) (*SignalClient, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c := &SignalClient{
		conn:     conn,
		logger:   logger,
		incoming: make(chan types.WebsocketMessage, eventBufferSize),
		outgoing: make(chan []byte, eventBufferSize),
		done:     make(chan struct{}),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.readPump()
	go c.writePump()
	return c, nil
}

// readPump reads messages from the websocket connection. When it returns the client is closed, so
// senders get ErrClosed instead of queueing frames nobody writes.
func (c *SignalClient) readPump() {
	defer func() {
		_ = c.conn.Close()
		c.Close()
		close(c.incoming)
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		msg := types.WebsocketMessage{}
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("read pump stopped", "error", err)
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the websocket connection and sends periodic pings.
func (c *SignalClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.Close()
	}()
	for {
		select {
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write pump stopped", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *SignalClient) send(event string, data interface{}) error {
	frame, err := types.Encode(event, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Join asks to enter a room. kind may be room.KindAny. The outcome arrives as room-users or
// room-error event.
func (c *SignalClient) Join(roomId, userId, userName string, kind room.Kind) error {
	return c.send(types.EventJoinRoom, types.JoinRoom{
		RoomId:   roomId,
		UserId:   userId,
		UserName: userName,
		RoomKind: kind.String(),
	})
}

func (c *SignalClient) SendChat(text string) error {
	return c.send(types.EventSendMessage, types.ChatRequest{Message: text})
}

// SendSignal relays a negotiation payload (offer, answer or ice-candidate) to the peer with the
// user id to.
func (c *SignalClient) SendSignal(event, to string, payload json.RawMessage) error {
	if !types.IsSignal(event) {
		return fmt.Errorf("not a signal event: %s", event)
	}
	req := types.SignalRequest{To: to}
	switch event {
	case types.EventOffer:
		req.Offer = payload
	case types.EventAnswer:
		req.Answer = payload
	case types.EventICECandidate:
		req.Candidate = payload
	}
	return c.send(event, req)
}

func (c *SignalClient) Leave() error {
	return c.send(types.EventLeaveRoom, nil)
}

// Events returns the channel of server events. It is closed when the connection ends.
func (c *SignalClient) Events() <-chan types.WebsocketMessage {
	return c.incoming
}

// Close sends a close frame and shuts the connection down. It is safe to call more than once.
func (c *SignalClient) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
