package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-signal/config"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
	"github.com/tcriess/lightspeed-signal/ws"
)

const maxRequestBodySize = 4096

// Server is the HTTP surface of the relay: room endpoints, health and the websocket upgrade.
type Server struct {
	hub      *ws.Hub
	registry *room.Registry
	cfg      *config.Config
	logger   hclog.Logger
	upgrader websocket.Upgrader
}

func New(hub *ws.Hub, registry *room.Registry, cfg *config.Config, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		hub:      hub,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

// Router returns the handler serving all routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	// room codes may contain characters which have to be escaped in a path
	router.UseEncodedPath()
	router.Use(s.cors())

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/create-room", s.createRoomHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/check-room/{roomId}", s.checkRoomHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms", s.listRoomsHandler).Methods(http.MethodGet, http.MethodOptions)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.websocketHandler).Methods(http.MethodGet)
	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Signaling server is healthy."))
}

func (s *Server) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	req := types.CreateRoomRequest{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	kind, err := room.ParseKind(req.Kind())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid room kind: must be private or group")
		return
	}
	roomId, err := s.registry.CreateRoom(kind)
	if err != nil {
		s.logger.Error("could not create room", "kind", kind, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not create room")
		return
	}
	s.logger.Info("created room", "room", roomId, "kind", kind)
	s.writeJSON(w, http.StatusOK, types.CreateRoomResponse{RoomId: roomId, RoomKind: kind.String(), RoomType: kind.String()})
}

func (s *Server) checkRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomId, err := url.PathUnescape(mux.Vars(r)["roomId"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed room id")
		return
	}
	info, err := s.registry.Describe(roomId)
	if errors.Is(err, room.ErrRoomNotFound) {
		s.writeError(w, http.StatusNotFound, room.ErrRoomNotFound.Error())
		return
	}
	if err != nil {
		s.logger.Error("could not describe room", "room", roomId, "error", err)
		s.writeError(w, http.StatusInternalServerError, "could not look up room")
		return
	}
	s.writeJSON(w, http.StatusOK, types.CheckRoomResponse{
		Exists:       true,
		Kind:         info.Kind.String(),
		Type:         info.Kind.String(),
		CurrentUsers: info.MemberCount,
		MaxUsers:     info.Capacity,
	})
}

func (s *Server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.List()
	rooms := make([]types.RoomSummary, 0, len(infos))
	for _, info := range infos {
		rooms = append(rooms, types.RoomSummary{
			RoomId:       info.Id,
			RoomKind:     info.Kind.String(),
			RoomType:     info.Kind.String(),
			CurrentUsers: info.MemberCount,
			MaxUsers:     info.Capacity,
			Full:         info.Full(),
			CreatedAt:    info.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

// Handle incoming websockets
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	client := ws.NewClient(s.hub, conn)
	if !s.hub.Attach(client) {
		s.logger.Warn("hub is stopped, rejecting connection")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	s.logger.Debug("new connection", "conn", client.ID, "remote", r.RemoteAddr)
	go client.WriteLoop()
	go client.ReadLoop()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("could not write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: message})
}
