package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/roomsync/pkg/room"
)

// handleConnect serves GET /connect/{roomID}?sessionId=.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	sessionID := r.URL.Query().Get("sessionId")

	if sessionID == "" {
		s.metrics.ObserveConnection(room.ConnMissingID)
		writeText(w, http.StatusBadRequest, "Missing sessionId")
		return
	}
	if !s.allow(time.Now()) {
		s.metrics.ObserveConnection(room.ConnRateLimited)
		w.Header().Set("Retry-After", "1")
		writeText(w, http.StatusTooManyRequests, "Too many connection attempts")
		return
	}

	rm, err := s.rooms.Room(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, room.ErrInvalidRoomID) {
			s.metrics.ObserveConnection(room.ConnInvalidRoom)
			writeText(w, http.StatusBadRequest, "Invalid room id")
			return
		}
		s.metrics.ObserveConnection(room.ConnFailed)
		s.logger.Error("room unavailable", "room", roomID, "error", err)
		writeText(w, http.StatusServiceUnavailable, "Room unavailable")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.metrics.ObserveConnection(room.ConnFailed)
		s.logger.Debug("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	conn := newConn(ws, sessionID, rm, s.config, s.logger.With("room", roomID))
	if err := rm.Accept(r.Context(), roomID, sessionID, conn); err != nil {
		s.metrics.ObserveConnection(room.ConnFailed)
		code, reason := closeFor(err)
		s.logger.Warn("connection rejected",
			"room", roomID,
			"session_id", sessionID,
			"error", err)
		conn.abort(code, reason)
		return
	}

	s.metrics.ObserveConnection(room.ConnAccepted)
	s.logger.Info("session connected",
		"room", roomID,
		"session_id", sessionID,
		"conn_id", conn.ID(),
		"remote_addr", r.RemoteAddr)
	conn.start(&s.conns)
}

// closeFor maps an Accept failure to a WebSocket close code.
func closeFor(err error) (int, string) {
	switch {
	case errors.Is(err, room.ErrRoomMismatch), errors.Is(err, room.ErrInvalidRoomID):
		return websocket.ClosePolicyViolation, "wrong room"
	case errors.Is(err, room.ErrSessionReplaced):
		return room.CloseSessionReplaced, "session replaced"
	case errors.Is(err, room.ErrRoomClosed):
		return room.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

type healthResponse struct {
	Status string   `json:"status"`
	Rooms  []string `json:"rooms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status: "ok",
		Rooms:  s.rooms.IDs(),
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
