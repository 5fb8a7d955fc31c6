package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"go-playbooks/internal/httpx"
	myMiddleware "go-playbooks/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	hub     *Hub
	service *Service
	log     zerolog.Logger
}

func NewHandler(hub *Hub, service *Service, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, service: service, log: log}
}

// Routes mounts the message endpoints on an /api router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/playbooks/{id}/messages", h.List)
	r.Post("/playbooks/{id}/messages", h.Send)
	r.Patch("/playbooks/{id}/messages/{messageID}", h.Edit)
	r.Delete("/playbooks/{id}/messages/{messageID}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), ident.UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, list)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in SendInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	m, err := h.service.Send(r.Context(), Author{ID: ident.UserID, Username: ident.Username}, chi.URLParam(r, "id"), in.Message)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, m)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	playbookID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	messageID, err := httpx.PathID(r, "messageID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var in SendInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.MessageIn(r.Context(), playbookID, messageID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	m, err := h.service.Edit(r.Context(), ident.UserID, messageID, in.Message)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, m)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	playbookID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	messageID, err := httpx.PathID(r, "messageID")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.MessageIn(r.Context(), playbookID, messageID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), ident.UserID, messageID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ServeWs upgrades an authenticated request for /ws?playbook_id=... and
// sends the thread history as the first frame.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	ident, err := myMiddleware.MustIdentity(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	playbookID, err := h.service.Resolve(r.Context(), ident.UserID, r.URL.Query().Get("playbook_id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	history, err := h.service.List(r.Context(), ident.UserID, playbookID.String())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:        h.hub,
		service:    h.service,
		conn:       conn,
		send:       make(chan []byte, 256),
		direct:     make(chan []byte, 16),
		playbookID: playbookID,
		userID:     ident.UserID,
		username:   ident.Username,
		log:        h.log.With().Str("user_id", ident.UserID.String()).Str("playbook_id", playbookID.String()).Logger(),
	}
	payload, _ := json.Marshal(Event{Type: EventHistory, PlaybookID: playbookID, Messages: history, At: time.Now()})
	client.direct <- payload
	if !client.hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
