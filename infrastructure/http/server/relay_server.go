package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"whiteboard-relay/auth"
	"whiteboard-relay/domain"
	"whiteboard-relay/observability"
	"whiteboard-relay/runtime"
	"whiteboard-relay/transport"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/samber/lo"
)

type Options struct {
	// AllowedOrigins applies to CORS and to the websocket handshake.
	// "*" allows every origin.
	AllowedOrigins []string
	Conn           transport.Options
	// Signer enables token checks on /ws when set.
	Signer *auth.Signer
}

// RelayServer is the HTTP face of the relay: it upgrades /ws/{roomID} and
// hands each websocket to the relay, plus a few read-only endpoints.
type RelayServer struct {
	log      *slog.Logger
	relay    *runtime.Relay
	registry *runtime.Registry
	metrics  *observability.Metrics
	probe    *observability.ProcessProbe
	opts     Options
	upgrader websocket.Upgrader
}

// NewRelayServer wires the handlers. probe may be nil, in which case /stats
// omits process information.
func NewRelayServer(log *slog.Logger, relay *runtime.Relay, registry *runtime.Registry,
	metrics *observability.Metrics, probe *observability.ProcessProbe, opts Options) *RelayServer {
	s := &RelayServer{
		log:      log,
		relay:    relay,
		registry: registry,
		metrics:  metrics,
		probe:    probe,
		opts:     opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *RelayServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{roomID}", s.serveWS)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /stats", s.stats)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Authorization"},
	}).Handler(mux)
}

func (s *RelayServer) serveWS(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(r.PathValue("roomID"))

	ctx, err := auth.Authenticate(s.opts.Signer, r)
	if err != nil {
		s.log.Debug("websocket rejected", "room_id", roomID, "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.log.Debug("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	conn := transport.NewConn(s.log, ws, s.opts.Conn)
	defer func() {
		_ = conn.Close()
	}()

	s.log.Info("connection accepted",
		"room_id", roomID, "conn_id", conn.ID(), "user", auth.UserID(ctx))
	s.relay.HandleConnection(ctx, roomID, conn)
	s.log.Info("connection closed", "room_id", roomID, "conn_id", conn.ID())
}

func (s *RelayServer) checkOrigin(r *http.Request) bool {
	if lo.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin.
	if origin == "" {
		return true
	}
	return lo.Contains(s.opts.AllowedOrigins, origin)
}

func (s *RelayServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *RelayServer) stats(w http.ResponseWriter, _ *http.Request) {
	rooms, connections := s.registry.Stats()
	stats := domain.RelayStats{
		Rooms:       rooms,
		Connections: connections,
		RoomMembers: s.registry.Snapshot(),
	}
	if s.probe != nil {
		if process, err := s.probe.Read(); err != nil {
			s.log.Warn("failed to collect process stats", "error", err)
		} else {
			stats.Process = &process
		}
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
