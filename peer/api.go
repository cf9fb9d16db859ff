package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

// API calls the room endpoints of a relay.
type API struct {
	baseURL string
	client  *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) do(ctx context.Context, method, path string, body, target interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := types.ErrorResponse{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = resp.Status
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, errResp.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return resp.StatusCode, fmt.Errorf("could not decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (a *API) CreateRoom(ctx context.Context, kind room.Kind) (types.CreateRoomResponse, error) {
	res := types.CreateRoomResponse{}
	_, err := a.do(ctx, http.MethodPost, "/api/create-room", types.CreateRoomRequest{RoomKind: kind.String()}, &res)
	return res, err
}

// CheckRoom describes a room. An unknown room yields room.ErrRoomNotFound.
func (a *API) CheckRoom(ctx context.Context, roomId string) (types.CheckRoomResponse, error) {
	res := types.CheckRoomResponse{}
	status, err := a.do(ctx, http.MethodGet, "/api/check-room/"+url.PathEscape(roomId), nil, &res)
	if status == http.StatusNotFound {
		return res, fmt.Errorf("%w: %s", room.ErrRoomNotFound, roomId)
	}
	return res, err
}

func (a *API) ListRooms(ctx context.Context) ([]types.RoomSummary, error) {
	rooms := []types.RoomSummary{}
	_, err := a.do(ctx, http.MethodGet, "/api/rooms", nil, &rooms)
	return rooms, err
}
