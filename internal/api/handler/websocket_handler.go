package handler

import (
	"net/http"
	"strconv"

	"codenvibe/internal/platform/logger"
	"codenvibe/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts connections from the configured web origins.
// A "*" entry allows any origin.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.ServeWs)                    // GET /ws?year=2
	r.Get("/ws/leaderboard/{year}", h.ServeWs) // GET /ws/leaderboard/2
}

// ServeWs subscribes the connection to one cohort's leaderboard updates. No
// backlog is sent; clients load the current state over GET /leaderboard.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "year")
	if raw == "" {
		raw = r.URL.Query().Get("year")
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		http.Error(w, "Missing or invalid year", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Debug(r.Context(), "websocket upgrade failed",
			zap.String("component", "realtime"), zap.Int("year", year), zap.Error(err))
		return
	}
	if !realtime.NewClient(h.hub, conn, year).Serve() {
		logger.Warn(r.Context(), "realtime hub stopped, connection refused",
			zap.String("component", "realtime"), zap.Int("year", year))
	}
}
