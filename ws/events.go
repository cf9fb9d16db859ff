package ws

import (
	"encoding/json"

	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

func (h *Hub) handle(in *Inbound) {
	c := in.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	if in.closed {
		h.leave(c, true)
		h.release(c)
		return
	}
	event := in.message.Event
	switch event {
	case types.EventJoinRoom:
		h.handleJoin(c, in.message.Data)

	case types.EventSendMessage:
		h.handleChat(c, in.message.Data)

	case types.EventOffer, types.EventAnswer, types.EventICECandidate:
		h.handleSignal(c, event, in.message.Data)

	case types.EventLeaveRoom:
		c.logger.Debug("leave requested")
		h.leave(c, true)
		c.state = stateClosing

	default:
		c.logger.Warn("ignoring unknown event", "event", event)
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	if c.state != stateConnected {
		h.deliver(c, types.EventRoomError, types.RoomError{
			Code:   types.ErrorCodeAlreadyJoined,
			Reason: "connection already joined a room",
		})
		return
	}
	req := types.JoinRoom{}
	if err := decodeData(data, &req); err != nil {
		c.logger.Warn("could not decode join request", "error", err)
		h.deliver(c, types.EventRoomError, types.RoomError{Code: types.ErrorCodeInvalidRequest, Reason: "malformed join request"})
		return
	}
	if req.RoomId == "" || req.UserId == "" {
		h.deliver(c, types.EventRoomError, types.RoomError{Code: types.ErrorCodeInvalidRequest, Reason: "roomId and userId are required"})
		return
	}
	expected := room.KindAny
	if req.RoomKind != "" {
		kind, err := room.ParseKind(req.RoomKind)
		if err != nil {
			h.deliver(c, types.EventRoomError, types.RoomError{Code: types.ErrorCodeInvalidRequest, Reason: err.Error()})
			return
		}
		expected = kind
	}
	if req.UserName == "" {
		req.UserName = h.newName()
	}

	if err := h.registry.Admit(req.RoomId, req.UserId, expected); err != nil {
		c.logger.Info("join rejected", "room", req.RoomId, "user", req.UserId, "error", err)
		h.deliver(c, types.EventRoomError, types.RoomError{Code: errorCode(err), Reason: err.Error()})
		c.state = stateClosing
		return
	}

	c.roomId = req.RoomId
	c.userId = req.UserId
	c.userName = req.UserName
	c.state = stateInRoom
	members, ok := h.sessions[c.roomId]
	if !ok {
		members = make(map[string]*Client)
		h.sessions[c.roomId] = members
	}
	members[c.userId] = c
	h.inRoom.Add(1)
	c.logger.Info("joined room", "room", c.roomId, "user", c.userId, "name", c.userName)

	h.deliver(c, types.EventRoomUsers, h.others(c))
	h.broadcast(c.roomId, c, types.EventUserConnected, types.UserConnected{
		User:      types.User{UserId: c.userId, UserName: c.userName},
		Timestamp: h.now(),
	})
}

func (h *Hub) handleChat(c *Client, data json.RawMessage) {
	if c.state != stateInRoom {
		c.logger.Debug("dropping chat message of client outside a room")
		return
	}
	text, err := chatText(data)
	if err != nil {
		c.logger.Warn("could not decode chat message", "error", err)
		return
	}
	if err := h.validChat(text); err != nil {
		c.logger.Debug("dropping chat message", "reason", err)
		return
	}
	msg := types.ReceiveMessage{
		UserId:    c.userId,
		UserName:  c.userName,
		Message:   text,
		Timestamp: h.now(),
	}
	if err := msg.CreateId(); err != nil {
		c.logger.Error("could not hash chat message", "error", err)
		return
	}
	h.broadcast(c.roomId, c, types.EventReceiveMessage, msg)
}

// handleSignal relays a negotiation payload to exactly one other session of the sender's room.
func (h *Hub) handleSignal(c *Client, event string, data json.RawMessage) {
	if c.state != stateInRoom {
		c.logger.Debug("dropping signal of client outside a room", "event", event)
		return
	}
	req := types.SignalRequest{}
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("could not decode signal", "event", event, "error", err)
		return
	}
	payload := req.Payload(event)
	if req.To == "" || len(payload) == 0 {
		c.logger.Debug("dropping incomplete signal", "event", event)
		return
	}
	if req.To == c.userId {
		return
	}
	target, ok := h.sessions[c.roomId][req.To]
	if !ok {
		c.logger.Debug("dropping signal to unknown peer", "event", event, "room", c.roomId, "to", req.To)
		return
	}
	h.deliver(target, event, types.NewSignal(event, c.userId, payload))
}
