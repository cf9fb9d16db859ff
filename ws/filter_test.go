package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

func TestChatText(t *testing.T) {
	text, err := chatText(json.RawMessage(`"plain"`))
	require.NoError(t, err)
	assert.Equal(t, "plain", text)

	text, err = chatText(json.RawMessage(`{"message":"object"}`))
	require.NoError(t, err)
	assert.Equal(t, "object", text)

	// scalars are converted loosely
	text, err = chatText(json.RawMessage(`{"message":42}`))
	require.NoError(t, err)
	assert.Equal(t, "42", text)

	_, err = chatText(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
	_, err = chatText(nil)
	assert.Error(t, err)
}

func TestDecodeJoinRoom(t *testing.T) {
	req := types.JoinRoom{}
	require.NoError(t, decodeData(json.RawMessage(`{"roomId":"PABC123","userId":7,"userName":"Ann","roomKind":"private"}`), &req))
	assert.Equal(t, types.JoinRoom{RoomId: "PABC123", UserId: "7", UserName: "Ann", RoomKind: "private"}, req)
}

func TestValidChat(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChatLength = 5
	h := NewHub(room.NewRegistry(), cfg, nil)

	assert.NoError(t, h.validChat("hello"))
	// counted in runes, not bytes
	assert.NoError(t, h.validChat("héllö"))
	assert.Error(t, h.validChat("hello!"))
	assert.Error(t, h.validChat(""))
	assert.Error(t, h.validChat(" \t\n"))
	assert.Error(t, h.validChat(string([]byte{0xff, 0xfe})))
	assert.NoError(t, h.validChat(strings.Repeat("x", 5)))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, types.ErrorCodeRoomNotFound, errorCode(room.ErrRoomNotFound))
	assert.Equal(t, types.ErrorCodeWrongKind, errorCode(fmt.Errorf("%w: nope", room.ErrWrongKind)))
	assert.Equal(t, types.ErrorCodeRoomFull, errorCode(fmt.Errorf("%w (max: 2)", room.ErrRoomFull)))
	assert.Equal(t, types.ErrorCodeUserExists, errorCode(room.ErrUserExists))
	assert.Equal(t, types.ErrorCodeInvalidRequest, errorCode(room.ErrUnknownKind))
}
