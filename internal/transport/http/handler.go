package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/cwrk-planet/lofi-relay/internal/hub"
	"github.com/cwrk-planet/lofi-relay/internal/service"
	"github.com/cwrk-planet/lofi-relay/pkg/httputil"
)

type Handler struct {
	roomSvc     *service.RoomService
	chatSvc     *service.ChatService
	presenceSvc *service.PresenceService
	bc          *hub.Broadcaster

	validate *validator.Validate
}

func NewHandler(room *service.RoomService, chat *service.ChatService, presence *service.PresenceService, bc *hub.Broadcaster) *Handler {
	return &Handler{
		roomSvc:     room,
		chatSvc:     chat,
		presenceSvc: presence,
		bc:          bc,
		validate:    validator.New(),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := toHTTP(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "handler."+op, slog.Any("err", err))
	}
	httputil.Error(r.Context(), w, status, publicMessage(err), nil)
}

// GET /api/
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Lofi Chatroom API"})
}

// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "CreateRoom.Decode", fmt.Errorf("%w: invalid json", errInvalidInput))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, "CreateRoom.Validate", fmt.Errorf("%w: %v", errInvalidInput, err))
		return
	}

	room, err := h.roomSvc.CreateRoom(r.Context(), service.CreateRoomInput(req))
	if err != nil {
		h.fail(w, r, "CreateRoom", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toRoomItem(*room, 0))
}

// GET /api/rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	rooms, next, err := h.roomSvc.ListRooms(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.fail(w, r, "ListRooms", err)
		return
	}
	httputil.JSON(w, http.StatusOK, RoomsListResponse{
		Items:      lo.Map(rooms, toRoomItem),
		NextCursor: next,
	})
}

// GET /api/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "GetRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, toRoomItem(*room, 0))
}

// DELETE /api/rooms/{id}
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.DeleteRoom(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "DeleteRoom", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/rooms/{id}/messages?limit=&before=
// Комната может не существовать в каталоге: история ведётся по любому room id.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.chatSvc.History(r.Context(),
		chi.URLParam(r, "id"), r.URL.Query().Get("before"), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, "GetMessages", err)
		return
	}
	httputil.JSON(w, http.StatusOK, ChatHistoryResponse{
		Items:      lo.Map(items, toChatMessageItem),
		NextCursor: next,
	})
}

// GET /api/rooms/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	items := h.presenceSvc.ListParticipants(roomID)
	httputil.JSON(w, http.StatusOK, ParticipantsResponse{
		RoomID:    roomID,
		UserCount: len(items),
		Items:     items,
	})
}

// POST /api/init-default-rooms
func (h *Handler) InitDefaultRooms(w http.ResponseWriter, r *http.Request) {
	if _, err := h.roomSvc.InitDefaultRooms(r.Context()); err != nil {
		h.fail(w, r, "InitDefaultRooms", err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Default rooms initialized"})
}

// GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, StatsResponse{
		Connections: h.presenceSvc.Connections(),
		Deliveries:  h.bc.Stats(),
		ActiveRooms: h.presenceSvc.ActiveRooms(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
