package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-signal/types"
)

type clientState int

const (
	stateConnected clientState = iota // transport open, not in a room
	stateInRoom
	stateClosing // left or was rejected, waiting for the transport to close
	stateClosed
)

func (s clientState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateInRoom:
		return "in-room"
	case stateClosing:
		return "closing"
	}
	return "closed"
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// ID identifies the connection in the logs.
	ID string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub only.
	Send chan []byte

	logger hclog.Logger

	// session context, owned by the hub goroutine
	roomId   string
	userId   string
	userName string
	state    clientState
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		hub:    hub,
		conn:   conn,
		Send:   make(chan []byte, hub.cfg.SendBufferSize),
		logger: hub.logger.With("conn", id),
		state:  stateConnected,
	}
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.hub.submit(&Inbound{client: c, closed: true})
		_ = c.conn.Close()
	}()
	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("ws closed unexpectedly", "error", err)
			} else {
				c.logger.Debug("ws closed", "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			c.logger.Warn("could not unmarshal ws message", "error", err)
			continue
		}
		if message.Event == "" {
			c.logger.Warn("ignoring ws message without event")
			continue
		}
		if !c.hub.submit(&Inbound{client: c, message: message}) {
			return
		}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.logger.Debug("send channel closed, exiting write loop")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("could not write to ws connection, exiting write loop", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("could not send ping message, exiting write loop", "error", err)
				return
			}
		}
	}
}
