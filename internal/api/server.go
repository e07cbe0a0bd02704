// Package api serves the current snapshot over HTTP: JSON views enriched
// with display labels, the snapshot re-encoded as GTFS-realtime protobuf, and
// a websocket stream of every published snapshot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"transit-realtime/internal/clock"
	"transit-realtime/internal/db"
	"transit-realtime/internal/encode"
	"transit-realtime/internal/fallback"
	"transit-realtime/internal/logging"
	"transit-realtime/internal/realtime"
)

type Snapshots interface {
	Current() (realtime.FeedSnapshot, bool)
	Subscribe(buffer int) (<-chan realtime.FeedSnapshot, func())
}

type Notices interface {
	Recent() []realtime.Notice
}

type Tracks interface {
	RecentTrack(ctx context.Context, vehicleID string, since time.Time, limit int) ([]db.TrackPoint, error)
}

type Options struct {
	Store   Snapshots
	Notices Notices
	// Tracks is optional; without it the track endpoint answers 503.
	Tracks   Tracks
	Location *time.Location
	Clock    clock.Clock
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	store    Snapshots
	notices  Notices
	tracks   Tracks
	loc      *time.Location
	clock    clock.Clock
	limiter  *rateLimiter
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func New(opts Options) *Server {
	c := opts.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		store:   opts.Store,
		notices: opts.Notices,
		tracks:  opts.Tracks,
		loc:     loc,
		clock:   c,
		limiter: newRateLimiter(opts.RateLimit, opts.RateBurst, c),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logging.Component("api"),
	}
}

// Handler returns the routed handler with request id, logging and rate
// limiting applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, requestLogger(s.log), s.limiter.middleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/trips", s.handleTrips).Methods(http.MethodGet)
	v1.HandleFunc("/trips/delayed", s.handleDelayedTrips).Methods(http.MethodGet)
	v1.HandleFunc("/vehicles", s.handleVehicles).Methods(http.MethodGet)
	v1.HandleFunc("/vehicles/{id}", s.handleVehicle).Methods(http.MethodGet)
	v1.HandleFunc("/vehicles/{id}/track", s.handleTrack).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/notices", s.handleNotices).Methods(http.MethodGet)

	r.HandleFunc("/gtfs-rt/{feed}", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	return r
}

func (s *Server) labels() labeler { return labeler{now: s.clock.Now(), loc: s.loc} }

// current writes 503 and returns false until the first snapshot exists.
func (s *Server) current(w http.ResponseWriter) (realtime.FeedSnapshot, bool) {
	snap, ok := s.store.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
	}
	return snap, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.store.Current()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": snap.Generation,
		"simulated":  snap.Simulated,
		"updated_at": snap.UpdatedAt,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.labels().snapshot(snap))
}

func (s *Server) handleTrips(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.labels().trips(snap.TripUpdates))
}

func (s *Server) handleDelayedTrips(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.labels().trips(snap.DelayedTrips(limit)))
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	route := strings.TrimSpace(r.URL.Query().Get("route"))
	writeJSON(w, http.StatusOK, s.labels().vehicles(snap.VehiclesOnRoute(route)))
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if v, found := findVehicle(&snap, id); found {
		writeJSON(w, http.StatusOK, s.labels().vehicle(v))
		return
	}
	writeError(w, http.StatusNotFound, "vehicle not found")
}

// findVehicle matches the entity id first, then the vehicle descriptor id.
func findVehicle(snap *realtime.FeedSnapshot, id string) (realtime.VehiclePosition, bool) {
	if v, ok := snap.Vehicle(id); ok {
		return v, true
	}
	for i := range snap.VehiclePositions {
		if db.VehicleKey(&snap.VehiclePositions[i]) == id {
			return snap.VehiclePositions[i], true
		}
	}
	return realtime.VehiclePosition{}, false
}

type trackResponse struct {
	VehicleID string          `json:"vehicle_id"`
	Points    []db.TrackPoint `json:"points"`
	Summary   db.TrackSummary `json:"summary"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if s.tracks == nil {
		writeError(w, http.StatusServiceUnavailable, "track history is not configured")
		return
	}
	minutes, err := intParam(r, "minutes", 60)
	if err != nil || minutes <= 0 {
		writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
		return
	}
	limit, err := intParam(r, "limit", 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	since := s.clock.Now().Add(-time.Duration(minutes) * time.Minute)
	pts, err := s.tracks.RecentTrack(r.Context(), id, since, limit)
	if err != nil {
		s.log.Error().Err(err).Str("vehicle_id", id).Msg("load track")
		writeError(w, http.StatusInternalServerError, "could not load track")
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{VehicleID: id, Points: pts, Summary: db.Summarize(pts)})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.current(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	alerts := snap.AlertsFor(strings.TrimSpace(q.Get("route")), strings.TrimSpace(q.Get("stop")))
	writeJSON(w, http.StatusOK, s.labels().alerts(alerts))
}

func (s *Server) handleNotices(w http.ResponseWriter, _ *http.Request) {
	if s.notices == nil {
		writeJSON(w, http.StatusOK, []realtime.Notice{})
		return
	}
	writeJSON(w, http.StatusOK, s.notices.Recent())
}

var feedKinds = map[string]realtime.Kind{
	"trip_updates":      realtime.KindTripUpdate,
	"vehicle_positions": realtime.KindVehiclePosition,
	"alerts":            realtime.KindAlert,
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["feed"], ".pb")
	kind, known := feedKinds[name]
	if !known {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}
	snap, ok := s.current(w)
	if !ok {
		return
	}
	b, err := encode.Marshal(&snap, kind)
	if err != nil {
		s.log.Error().Err(err).Str("feed", name).Msg("encode feed")
		writeError(w, http.StatusInternalServerError, "could not encode feed")
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("X-Snapshot-Generation", strconv.FormatUint(snap.Generation, 10))
	if snap.Simulated {
		w.Header().Set("X-Simulated", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func isPlaceholder(id string) bool { return strings.HasPrefix(id, fallback.Prefix) }

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
