package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mkraft/scrumdeck/internal/persist"
	"github.com/mkraft/scrumdeck/internal/session"
	"github.com/mkraft/scrumdeck/internal/store"
	"github.com/mkraft/scrumdeck/internal/ws"
)

type API struct {
	hub     *ws.Hub
	core    *session.Registry
	persist *persist.Service
}

func New(hub *ws.Hub, core *session.Registry, persistSvc *persist.Service) *API {
	return &API{
		hub:     hub,
		core:    core,
		persist: persistSvc,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"live_rooms":     len(a.core.Rooms()),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Room handlers

type roomInfo struct {
	Code          string     `json:"code"`
	Live          bool       `json:"live"`
	Participants  int        `json:"participants"`
	VotesRevealed bool       `json:"votesRevealed"`
	TopicLabel    string     `json:"topicLabel,omitempty"`
	HasPassword   bool       `json:"hasPassword"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// RoomsRouter dispatches /api/rooms and /api/rooms/{code}[/action].
func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rooms"), "/")

	if rest == "" {
		if r.Method != http.MethodGet {
			errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a.listRooms(w, r)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	code := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.getRoom(w, r, code)
	case action == "" && r.Method == http.MethodDelete:
		a.deleteRoom(w, r, code)
	case action == "password" && r.Method == http.MethodPost:
		a.setPassword(w, r, code)
	case action == "verify" && r.Method == http.MethodPost:
		a.verifyPassword(w, r, code)
	default:
		errorResponse(w, http.StatusNotFound, "not found")
	}
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	codes := a.core.Rooms()
	rooms := make([]roomInfo, 0, len(codes))
	for _, code := range codes {
		if room, ok := a.core.GetRoom(code); ok {
			v := room.View()
			rooms = append(rooms, roomInfo{
				Code:          code,
				Live:          true,
				Participants:  len(v.Participants),
				VotesRevealed: v.VotesRevealed,
				TopicLabel:    v.TopicLabel,
			})
		}
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request, code string) {
	info := roomInfo{Code: code}

	if room, ok := a.core.GetRoom(code); ok {
		v := room.View()
		info.Live = true
		info.Participants = len(v.Participants)
		info.VotesRevealed = v.VotesRevealed
		info.TopicLabel = v.TopicLabel
	}

	snap, err := a.persist.Load(code)
	if err != nil {
		if errors.Is(err, persist.ErrRoomCode) {
			errorResponse(w, http.StatusBadRequest, "invalid room code")
			return
		}
		logrus.WithError(err).WithField("room", code).Error("Failed to load stored room")
		errorResponse(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	if snap != nil {
		info.HasPassword = snap.PasswordHash != ""
		info.CreatedAt = &snap.CreatedAt
		info.UpdatedAt = &snap.UpdatedAt
		if !info.Live {
			info.Participants = len(snap.Participants)
			info.TopicLabel = snap.TopicLabel
		}
	}

	if !info.Live && snap == nil {
		errorResponse(w, http.StatusNotFound, "room not found")
		return
	}
	jsonResponse(w, http.StatusOK, info)
}

func (a *API) deleteRoom(w http.ResponseWriter, r *http.Request, code string) {
	err := a.persist.Delete(code)
	if errors.Is(err, persist.ErrRoomCode) {
		errorResponse(w, http.StatusBadRequest, "invalid room code")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to delete stored room")
		errorResponse(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"deleted": code})
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (a *API) setPassword(w http.ResponseWriter, r *http.Request, code string) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := a.persist.SetPassword(code, req.Password)
	if errors.Is(err, persist.ErrRoomCode) {
		errorResponse(w, http.StatusBadRequest, "invalid room code")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to set password")
		errorResponse(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) verifyPassword(w http.ResponseWriter, r *http.Request, code string) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ok, err := a.persist.VerifyPassword(code, req.Password)
	if errors.Is(err, persist.ErrRoomCode) {
		errorResponse(w, http.StatusBadRequest, "invalid room code")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("room", code).Error("Failed to verify password")
		errorResponse(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": ok})
}
