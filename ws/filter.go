package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

// decodeData decodes the data of an event into target. Scalars are converted loosely, so a numeric
// user id is accepted as a string.
func decodeData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	dataMap := make(map[string]interface{})
	if err := json.Unmarshal(data, &dataMap); err != nil {
		return err
	}
	return mapstructure.WeakDecode(dataMap, target)
}

// chatText accepts both the plain string form and the {message} object form of send-message.
func chatText(data json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text, nil
	}
	req := types.ChatRequest{}
	if err := decodeData(data, &req); err != nil {
		return "", err
	}
	return req.Message, nil
}

func (h *Hub) validChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty message")
	}
	if !utf8.ValidString(text) {
		return errors.New("invalid utf-8")
	}
	if n := utf8.RuneCountInString(text); n > h.cfg.MaxChatLength {
		return fmt.Errorf("message too long (%d > %d)", n, h.cfg.MaxChatLength)
	}
	return nil
}

// errorCode maps registry errors to the codes sent in room-error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return types.ErrorCodeRoomNotFound
	case errors.Is(err, room.ErrWrongKind):
		return types.ErrorCodeWrongKind
	case errors.Is(err, room.ErrRoomFull):
		return types.ErrorCodeRoomFull
	case errors.Is(err, room.ErrUserExists):
		return types.ErrorCodeUserExists
	}
	return types.ErrorCodeInvalidRequest
}
