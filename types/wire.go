package types

import "encoding/json"

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection, in both
// directions. Data is event specific.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds the serialized envelope for event with data as its payload.
func Encode(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(WebsocketMessage{
		Event: event,
		Data:  raw,
	})
}
