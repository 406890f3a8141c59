// Package api provides the HTTP API for observing and steering the ecosystem.
// GET endpoints are public (read-only observation).
// POST and DELETE endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-ecosystem/internal/agents"
	"github.com/talgya/mini-ecosystem/internal/engine"
	"github.com/talgya/mini-ecosystem/internal/geom"
	"github.com/talgya/mini-ecosystem/internal/persistence"
	"github.com/talgya/mini-ecosystem/internal/resources"
	"github.com/talgya/mini-ecosystem/internal/world"
)

const (
	maxStreamConns = 16
	streamCatchUp  = 50
	pingInterval   = 15 * time.Second
	writeWait      = 10 * time.Second

	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxSpeed          = 1000
)

// Server serves the ecosystem state over HTTP.
type Server struct {
	Sim            *engine.Simulation
	Eng            *engine.Engine
	DB             *persistence.DB // optional; spawned entities are stored here
	Port           int
	AdminKey       string   // Bearer token for mutating endpoints. Empty = mutations disabled.
	AllowedOrigins []string // extra CORS origins besides the localhost dev servers
	SpawnPerMinute int      // per-IP spawn limit; 0 disables limiting

	// Active websocket connection count (atomic).
	streamConns int32
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	spawnLimiter := NewRateLimiter(s.SpawnPerMinute, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/entities", s.handleEntities)
	mux.HandleFunc("/api/v1/zones", s.handleZones)
	mux.HandleFunc("/api/v1/elements", s.handleElements)
	mux.HandleFunc("/api/v1/resources", s.handleResources)
	mux.HandleFunc("/api/v1/traces", s.handleTraces)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/scarcity", s.handleScarcity)

	// Websocket event stream.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// GET is public, DELETE requires the admin token.
	mux.HandleFunc("/api/v1/entity/", s.adminOnly(s.handleEntity))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/spawn", s.adminOnly(RateLimitMiddleware(spawnLimiter, s.handleSpawn)))
	mux.HandleFunc("/api/v1/harvest", s.adminOnly(s.handleHarvest))
	mux.HandleFunc("/api/v1/contribute", s.adminOnly(s.handleContribute))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(s.AllowedOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(extra []string, next http.Handler) http.Handler {
	allowed := originSet(extra)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originSet(extra []string) map[string]bool {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = true
		}
	}
	return allowed
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on mutating requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no ECOSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"name":     "Digital Ecosystem",
		"tick":     s.Eng.Tick(),
		"sim_time": s.Eng.Now().UTC(),
		"speed":    s.Eng.Speed(),
		"running":  s.Eng.Running(),
		"stats":    s.Sim.Status(),
	})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.Sim.Behavior.Entities()
	if status := agents.Status(r.URL.Query().Get("status")); status != "" {
		if !status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		filtered := entities[:0]
		for _, e := range entities {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}
	writeJSON(w, entities)
}

// handleEntity serves GET and DELETE /api/v1/entity/{id}.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/entity/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "entity id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, ok := s.Sim.Behavior.Entity(id)
		if !ok {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		writeJSON(w, e)
	case http.MethodDelete:
		if !s.Sim.RemoveEntity(id) {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		slog.Info("entity removed via API", "id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Biome.Zones())
}

// handleElements lists flora, optionally only those within radius of (x, y).
func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	center, radius, ok, err := areaQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		writeJSON(w, s.Sim.Biome.ElementsNear(center, radius))
		return
	}
	writeJSON(w, s.Sim.Biome.Elements())
}

// handleResources lists deposits. With x, y and radius it returns only the
// non-empty deposits in range; type narrows either listing.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	center, radius, ok, err := areaQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind := world.ResourceType(r.URL.Query().Get("type"))
	if ok {
		writeJSON(w, s.Sim.Resources.FindResourcesNear(center, radius, kind))
		return
	}

	all := s.Sim.Resources.AllResources()
	if kind == "" {
		writeJSON(w, all)
		return
	}
	filtered := all[:0]
	for _, res := range all {
		if res.Type == kind {
			filtered = append(filtered, res)
		}
	}
	writeJSON(w, filtered)
}

// handleTraces lists marks left by one entity (?entity=), in an area
// (?x=&y=&radius=), or all of them.
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("entity"); id != "" {
		writeJSON(w, s.Sim.Traces.TracesFromEntity(id))
		return
	}
	center, radius, ok, err := areaQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		writeJSON(w, s.Sim.Traces.TracesInArea(center, radius))
		return
	}
	writeJSON(w, s.Sim.Traces.AllTraces())
}

// handleEvents returns recent events from memory, or from the database with
// ?source=db.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "no database configured", http.StatusNotFound)
			return
		}
		events, err := s.DB.RecentEvents(limit)
		if err != nil {
			slog.Error("failed to load events", "error", err)
			http.Error(w, "failed to load events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
		return
	}
	writeJSON(w, s.Sim.Events(limit))
}

func (s *Server) handleScarcity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Resources.Scarcity())
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		DonorEmail string `json:"donor_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.DonorEmail); err != nil {
		http.Error(w, "donor_email must be a valid address", http.StatusBadRequest)
		return
	}

	e, err := s.Sim.Spawn(r.Context(), req.DonorEmail)
	if err != nil {
		slog.Error("spawn failed", "error", err)
		http.Error(w, "spawn failed", http.StatusInternalServerError)
		return
	}
	if s.DB != nil {
		if err := s.DB.CreateEntity(e); err != nil {
			slog.Error("failed to store spawned entity", "id", e.ID, "error", err)
		}
	}
	slog.Info("entity spawned", "id", e.ID, "name", e.Name, "species", e.Species)
	writeJSONStatus(w, http.StatusCreated, e)
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		EntityID   string  `json:"entity_id"`
		ResourceID string  `json:"resource_id"`
		Amount     float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	res, err := s.Sim.Harvest(req.EntityID, req.ResourceID, req.Amount)
	if errors.Is(err, engine.ErrUnknownEntity) {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		EntityID   string                 `json:"entity_id"`
		ResourceID string                 `json:"resource_id"`
		Kind       resources.Contribution `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := s.Sim.Contribute(req.EntityID, req.ResourceID, req.Kind)
	if errors.Is(err, engine.ErrUnknownEntity) {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > maxSpeed {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// areaQuery parses the optional x, y, radius triple. ok is false when none of
// them is present.
func areaQuery(r *http.Request) (center geom.Vec, radius float64, ok bool, err error) {
	q := r.URL.Query()
	if !q.Has("x") && !q.Has("y") && !q.Has("radius") {
		return geom.Vec{}, 0, false, nil
	}
	var vals [3]float64
	for i, name := range []string{"x", "y", "radius"} {
		vals[i], err = strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			return geom.Vec{}, 0, false, fmt.Errorf("%s must be a number", name)
		}
	}
	if vals[2] < 0 {
		return geom.Vec{}, 0, false, errors.New("radius must not be negative")
	}
	return geom.Vec{X: vals[0], Y: vals[1]}, vals[2], true, nil
}

// handleStream upgrades to a websocket and pushes every new event as JSON.
// The last few events are sent first as catch-up.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.streamConns, 1)
	defer atomic.AddInt32(&s.streamConns, -1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	allowed := originSet(s.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before catch-up so nothing falls between the two.
	ch, cancel := s.Sim.Subscribe()
	defer cancel()

	for _, e := range s.Sim.Events(streamCatchUp) {
		if err := writeEvent(conn, e); err != nil {
			return
		}
	}

	// Reader detects the client going away; incoming messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Info("stream client connected", "remote", clientIP(r))
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("stream client disconnected", "remote", clientIP(r))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e engine.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
