package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-signal/config"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	hub      *Hub
	registry *room.Registry
	cancel   context.CancelFunc
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.StatsCron = ""
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	registry := room.NewRegistry()
	hub := NewHub(registry, cfg, nil)
	hub.now = func() time.Time { return fixedNow }
	hub.newName = func() string { return "Nameless (guest)" }
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return &harness{t: t, hub: hub, registry: registry, cancel: cancel}
}

func (h *harness) createRoom(kind room.Kind) string {
	id, err := h.registry.CreateRoom(kind)
	require.NoError(h.t, err)
	return id
}

func (h *harness) connect() *Client {
	c := NewClient(h.hub, nil)
	require.True(h.t, h.hub.Attach(c))
	return c
}

func (h *harness) send(c *Client, event string, data interface{}) {
	raw, err := json.Marshal(data)
	require.NoError(h.t, err)
	h.hub.Inbound <- &Inbound{client: c, message: types.WebsocketMessage{Event: event, Data: raw}}
}

func (h *harness) disconnect(c *Client) {
	h.hub.Inbound <- &Inbound{client: c, closed: true}
}

// join connects a client, joins it and consumes its room-users frame.
func (h *harness) join(roomId, userId, userName string) (*Client, []string) {
	c := h.connect()
	h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: roomId, UserId: userId, UserName: userName})
	msg := next(h.t, c)
	require.Equal(h.t, types.EventRoomUsers, msg.Event, string(msg.Data))
	var users []string
	require.NoError(h.t, json.Unmarshal(msg.Data, &users))
	return c, users
}

// flush returns once the hub processed everything submitted before: the marker's join is answered
// only after all earlier inbound events were handled.
func (h *harness) flush() {
	marker := h.connect()
	h.send(marker, types.EventJoinRoom, types.JoinRoom{RoomId: "no-such-room", UserId: "marker"})
	msg := next(h.t, marker)
	require.Equal(h.t, types.EventRoomError, msg.Event)
}

func (h *harness) expectNothing(clients ...*Client) {
	h.flush()
	for _, c := range clients {
		select {
		case raw, ok := <-c.Send:
			if ok {
				h.t.Fatalf("unexpected frame: %s", raw)
			}
		default:
		}
	}
}

func next(t *testing.T, c *Client) types.WebsocketMessage {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		msg := types.WebsocketMessage{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for frame")
	}
	return types.WebsocketMessage{}
}

func nextError(t *testing.T, c *Client) types.RoomError {
	t.Helper()
	msg := next(t, c)
	require.Equal(t, types.EventRoomError, msg.Event)
	roomError := types.RoomError{}
	require.NoError(t, json.Unmarshal(msg.Data, &roomError))
	return roomError
}

func decode(t *testing.T, msg types.WebsocketMessage, event string, target interface{}) {
	t.Helper()
	require.Equal(t, event, msg.Event, string(msg.Data))
	require.NoError(t, json.Unmarshal(msg.Data, target))
}

func TestJoinAnnouncesPresence(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)

	a, users := h.join(roomId, "a", "Ann")
	assert.Equal(t, []string{}, users)

	_, users = h.join(roomId, "b", "Bob")
	assert.Equal(t, []string{"a"}, users)

	connected := types.UserConnected{}
	decode(t, next(t, a), types.EventUserConnected, &connected)
	assert.Equal(t, "b", connected.UserId)
	assert.Equal(t, "Bob", connected.UserName)
	assert.True(t, fixedNow.Equal(connected.Timestamp))

	info, err := h.registry.Describe(roomId)
	require.NoError(t, err)
	assert.Equal(t, 2, info.MemberCount)
	assert.Equal(t, 2, h.hub.Stats().Sessions)
}

func TestJoinGroupListsAllOthers(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindGroup)
	for i := 0; i < 4; i++ {
		h.join(roomId, fmt.Sprintf("u%d", i), "")
	}
	_, users := h.join(roomId, "u9", "")
	assert.Equal(t, []string{"u0", "u1", "u2", "u3"}, users)
}

func TestJoinErrors(t *testing.T) {
	h := newHarness(t, testConfig())
	private := h.createRoom(room.KindPrivate)
	h.join(private, "a", "Ann")

	t.Run("unknown room", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: "PNOPE00", UserId: "x"})
		assert.Equal(t, types.ErrorCodeRoomNotFound, nextError(t, c).Code)
	})

	t.Run("wrong kind", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private, UserId: "x", RoomKind: "group"})
		assert.Equal(t, types.ErrorCodeWrongKind, nextError(t, c).Code)
	})

	t.Run("duplicate user", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private, UserId: "a"})
		assert.Equal(t, types.ErrorCodeUserExists, nextError(t, c).Code)
	})

	t.Run("missing ids", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private})
		assert.Equal(t, types.ErrorCodeInvalidRequest, nextError(t, c).Code)
	})

	t.Run("malformed data", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, "not an object")
		assert.Equal(t, types.ErrorCodeInvalidRequest, nextError(t, c).Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private, UserId: "x", RoomKind: "stadium"})
		assert.Equal(t, types.ErrorCodeInvalidRequest, nextError(t, c).Code)
	})

	t.Run("full room", func(t *testing.T) {
		h.join(private, "b", "Bob")
		c := h.connect()
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private, UserId: "c"})
		roomError := nextError(t, c)
		assert.Equal(t, types.ErrorCodeRoomFull, roomError.Code)
		assert.Contains(t, roomError.Reason, "max: 2")

		// a rejected connection cannot try again
		h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: private, UserId: "c"})
		assert.Equal(t, types.ErrorCodeAlreadyJoined, nextError(t, c).Code)
	})

	info, err := h.registry.Describe(private)
	require.NoError(t, err)
	assert.Equal(t, 2, info.MemberCount)
}

func TestJoinTwice(t *testing.T) {
	h := newHarness(t, testConfig())
	first := h.createRoom(room.KindGroup)
	second := h.createRoom(room.KindGroup)
	c, _ := h.join(first, "a", "Ann")
	h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: second, UserId: "a"})
	assert.Equal(t, types.ErrorCodeAlreadyJoined, nextError(t, c).Code)

	info, err := h.registry.Describe(second)
	require.NoError(t, err)
	assert.Equal(t, 0, info.MemberCount)
}

func TestPlaceholderName(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindGroup)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "")

	connected := types.UserConnected{}
	decode(t, next(t, a), types.EventUserConnected, &connected)
	assert.Equal(t, "Nameless (guest)", connected.UserName)

	h.send(b, types.EventSendMessage, "hello")
	msg := types.ReceiveMessage{}
	decode(t, next(t, a), types.EventReceiveMessage, &msg)
	assert.Equal(t, "Nameless (guest)", msg.UserName)
}

func TestChatReachesOthersOnly(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChatLength = 10
	h := newHarness(t, cfg)
	roomId := h.createRoom(room.KindGroup)
	other := h.createRoom(room.KindGroup)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	c, _ := h.join(roomId, "c", "Cid")
	outsider, _ := h.join(other, "d", "Dee")
	next(t, a) // b connected
	next(t, a) // c connected
	next(t, b) // c connected

	h.send(a, types.EventSendMessage, "hi")
	for _, recipient := range []*Client{b, c} {
		msg := types.ReceiveMessage{}
		decode(t, next(t, recipient), types.EventReceiveMessage, &msg)
		assert.Equal(t, "a", msg.UserId)
		assert.Equal(t, "Ann", msg.UserName)
		assert.Equal(t, "hi", msg.Message)
		assert.NotEmpty(t, msg.Id)
	}

	h.send(b, types.EventSendMessage, types.ChatRequest{Message: "object"})
	msg := types.ReceiveMessage{}
	decode(t, next(t, a), types.EventReceiveMessage, &msg)
	assert.Equal(t, "object", msg.Message)
	next(t, c)

	// dropped: empty, whitespace only and too long
	h.send(a, types.EventSendMessage, "")
	h.send(a, types.EventSendMessage, "   ")
	h.send(a, types.EventSendMessage, strings.Repeat("x", 11))
	h.expectNothing(a, b, c, outsider)
}

func TestChatOrderPerSender(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	next(t, a)

	for i := 0; i < 50; i++ {
		h.send(a, types.EventSendMessage, fmt.Sprintf("m%d", i))
	}
	for i := 0; i < 50; i++ {
		msg := types.ReceiveMessage{}
		decode(t, next(t, b), types.EventReceiveMessage, &msg)
		assert.Equal(t, fmt.Sprintf("m%d", i), msg.Message)
	}
}

func TestSignalUnicast(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindGroup)
	other := h.createRoom(room.KindGroup)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	c, _ := h.join(roomId, "c", "Cid")
	// same user id in another room
	twin, _ := h.join(other, "b", "Other Bob")
	next(t, a)
	next(t, a)
	next(t, b)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	h.send(a, types.EventOffer, types.SignalRequest{To: "b", Offer: offer})
	signal := types.Signal{}
	decode(t, next(t, b), types.EventOffer, &signal)
	assert.Equal(t, "a", signal.From)
	assert.JSONEq(t, string(offer), string(signal.Offer))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`)
	h.send(b, types.EventAnswer, types.SignalRequest{To: "a", Answer: answer})
	signal = types.Signal{}
	decode(t, next(t, a), types.EventAnswer, &signal)
	assert.Equal(t, "b", signal.From)
	assert.JSONEq(t, string(answer), string(signal.Answer))

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host","sdpMid":"0"}`)
	h.send(a, types.EventICECandidate, types.SignalRequest{To: "c", Candidate: candidate})
	signal = types.Signal{}
	decode(t, next(t, c), types.EventICECandidate, &signal)
	assert.JSONEq(t, string(candidate), string(signal.Candidate))

	// dropped: to self, to an absent peer, without payload, payload of the wrong event
	h.send(a, types.EventOffer, types.SignalRequest{To: "a", Offer: offer})
	h.send(a, types.EventOffer, types.SignalRequest{To: "zed", Offer: offer})
	h.send(a, types.EventOffer, types.SignalRequest{To: "b"})
	h.send(a, types.EventAnswer, types.SignalRequest{To: "b", Offer: offer})
	h.expectNothing(a, b, c, twin)
}

func TestEventsBeforeJoinAreDropped(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")

	c := h.connect()
	h.send(c, types.EventSendMessage, "hello?")
	h.send(c, types.EventOffer, types.SignalRequest{To: "a", Offer: json.RawMessage(`{}`)})
	h.send(c, "dance", nil)
	h.expectNothing(a, c)

	// the connection is still usable
	h.send(c, types.EventJoinRoom, types.JoinRoom{RoomId: roomId, UserId: "c"})
	msg := next(t, c)
	assert.Equal(t, types.EventRoomUsers, msg.Event)
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	next(t, a)

	h.disconnect(b)
	disconnected := types.UserDisconnected{}
	decode(t, next(t, a), types.EventUserDisconnected, &disconnected)
	assert.Equal(t, "b", disconnected.UserId)
	assert.Equal(t, "Bob", disconnected.UserName)

	_, ok := <-b.Send
	assert.False(t, ok, "send channel of a disconnected client is closed")

	members, err := h.registry.Members(roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)

	// the freed place can be taken again
	h.join(roomId, "b", "Bob again")
}

func TestLeaveThenCloseRemovesOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindGroup)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	c, _ := h.join(roomId, "c", "Cid")
	next(t, a)
	next(t, a)
	next(t, b)

	h.send(a, types.EventLeaveRoom, nil)
	h.send(a, types.EventLeaveRoom, nil)
	h.disconnect(a)
	h.disconnect(a)
	for _, remaining := range []*Client{b, c} {
		disconnected := types.UserDisconnected{}
		decode(t, next(t, remaining), types.EventUserDisconnected, &disconnected)
		assert.Equal(t, "a", disconnected.UserId)
	}
	h.expectNothing(b, c)

	members, err := h.registry.Members(roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, members)

	_, ok := <-a.Send
	assert.False(t, ok)
	assert.Equal(t, 2, h.hub.Stats().Sessions)
}

func TestLeaveBeforeJoinIsHarmless(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")

	c := h.connect()
	h.send(c, types.EventLeaveRoom, nil)
	h.disconnect(c)
	h.expectNothing(a)

	members, err := h.registry.Members(roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)
}

func TestLastDepartureEvictsRoom(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")

	h.disconnect(a)
	h.send(b, types.EventLeaveRoom, nil)
	h.flush()

	_, err := h.registry.Describe(roomId)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.Equal(t, 0, h.hub.Stats().Rooms)
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	cfg := testConfig()
	cfg.SendBufferSize = 1
	h := newHarness(t, cfg)
	roomId := h.createRoom(room.KindPrivate)
	a, _ := h.join(roomId, "a", "Ann")

	// b's queue is filled by its room-users frame and never drained
	b := h.connect()
	h.send(b, types.EventJoinRoom, types.JoinRoom{RoomId: roomId, UserId: "b", UserName: "Bob"})
	decode(t, next(t, a), types.EventUserConnected, &types.UserConnected{})

	for i := 0; i < 3; i++ {
		h.send(a, types.EventSendMessage, "are you there?")
	}
	h.flush()
	assert.Equal(t, uint64(3), h.hub.Stats().Dropped)

	msg := next(t, b)
	assert.Equal(t, types.EventRoomUsers, msg.Event)
	h.expectNothing(b)
}

func TestShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	roomId := h.createRoom(room.KindGroup)
	a, _ := h.join(roomId, "a", "Ann")
	b, _ := h.join(roomId, "b", "Bob")
	next(t, a)
	idle := h.connect()
	h.flush()

	h.cancel()
	<-h.hub.Done()

	for _, c := range []*Client{a, b, idle} {
		_, ok := <-c.Send
		assert.False(t, ok)
	}
	_, err := h.registry.Describe(roomId)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	stats := h.hub.Stats()
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 0, stats.Sessions)

	assert.False(t, h.hub.Attach(NewClient(h.hub, nil)))
	assert.False(t, h.hub.submit(&Inbound{client: a, closed: true}))
}
