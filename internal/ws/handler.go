package ws

import (
	"net/http"

	"github.com/carebridge/intake/internal/config"
	"github.com/carebridge/intake/internal/metrics"
	"github.com/carebridge/intake/internal/triage"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades visitor connections and hands them to the triage service
type Handler struct {
	triage   *triage.Service
	cfg      *config.Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler for visitor engagement channels
func NewHandler(svc *triage.Service, cfg *config.Config, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Handler{
		triage: svc,
		cfg:    cfg,
		logger: logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients (simulator, tests) send no Origin
				if origin == "" {
					return true
				}
				return allowed[origin] || allowed["*"]
			},
		},
	}
}

// ServeHTTP handles WebSocket upgrade requests from visitors
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade visitor connection")
		return
	}

	metrics.Get().RecordWebSocketConnect()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("visitor connected")

	client := NewVisitorClient(conn, h.triage, h.cfg, h.logger)
	client.Start()
}
