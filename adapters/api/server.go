package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const defaultHistoryLimit = 100

type APIConfig struct {
	Addr string `yaml:"Addr"`
}

// IFleetQuery is the read side of the monitoring service.
type IFleetQuery interface {
	Latest() model.Snapshot
	EquipmentStatusByID(id string) (model.UnitStatus, error)
	EquipmentHistory(id string, limit int) (model.History, error)
}

// IJournal reads the persisted anomaly and maintenance history.
type IJournal interface {
	Anomalies(equipmentID string, limit int) ([]model.AnomalyRecord, error)
	MaintenanceEvents(equipmentID string) ([]model.MaintenanceEvent, error)
}

type Server struct {
	svc     IFleetQuery
	journal IJournal
	router  *mux.Router
	metrics http.Handler
	logger  zerolog.Logger
}

// NewServer wires the query routes. A nil metrics handler serves the default
// prometheus registry.
func NewServer(svc IFleetQuery, metrics http.Handler, logger zerolog.Logger) *Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		metrics: metrics,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/system_status", s.handleSystemStatus).Methods("GET")
	s.router.HandleFunc("/api/equipment/{id}", s.handleEquipment).Methods("GET")
	s.router.HandleFunc("/api/equipment/{id}/history", s.handleHistory).Methods("GET")
	s.router.HandleFunc("/api/anomalies", s.handleAnomalies).Methods("GET")
	s.router.Handle("/metrics", s.metrics).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// WithJournal adds the stored history routes backed by j.
func (s *Server) WithJournal(j IJournal) *Server {
	s.journal = j
	s.router.HandleFunc("/api/equipment/{id}/anomalies", s.handleAnomalyHistory).Methods("GET")
	s.router.HandleFunc("/api/equipment/{id}/maintenance", s.handleMaintenanceHistory).Methods("GET")
	return s
}

func (s *Server) Router() *mux.Router {
	return s.router
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("API server shutdown")
		}
	}()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
	})
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type systemStatus struct {
	Timestamp       time.Time                   `json:"timestamp"`
	Stats           model.FleetStats            `json:"stats"`
	EquipmentStatus map[string]model.UnitStatus `json:"equipment_status"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Latest()
	respondJSON(w, http.StatusOK, systemStatus{
		Timestamp:       snap.Timestamp,
		Stats:           snap.Stats,
		EquipmentStatus: snap.EquipmentStatus,
	})
}

func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	st, err := s.svc.EquipmentStatusByID(id)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	h, err := s.svc.EquipmentHistory(id, limit)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies := s.svc.Latest().Anomalies
	if id := r.URL.Query().Get("equipment_id"); id != "" {
		filtered := []model.AnomalyRecord{}
		for _, a := range anomalies {
			if a.EquipmentID == id {
				filtered = append(filtered, a)
			}
		}
		anomalies = filtered
	}
	if anomalies == nil {
		anomalies = []model.AnomalyRecord{}
	}
	respondJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleAnomalyHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	if _, err := s.svc.EquipmentStatusByID(id); err != nil {
		s.respondLookupError(w, err)
		return
	}

	records, err := s.journal.Anomalies(id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("equipment_id", id).Msg("anomaly history query failed")
		respondError(w, http.StatusInternalServerError, "anomaly history unavailable")
		return
	}
	if records == nil {
		records = []model.AnomalyRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleMaintenanceHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.svc.EquipmentStatusByID(id); err != nil {
		s.respondLookupError(w, err)
		return
	}

	events, err := s.journal.MaintenanceEvents(id)
	if err != nil {
		s.logger.Error().Err(err).Str("equipment_id", id).Msg("maintenance history query failed")
		respondError(w, http.StatusInternalServerError, "maintenance history unavailable")
		return
	}
	if events == nil {
		events = []model.MaintenanceEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// queryLimit parses the optional limit parameter, writing a 400 when it is
// not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrEquipmentNotFound) {
		respondError(w, http.StatusNotFound, "equipment not found")
		return
	}
	s.logger.Error().Err(err).Msg("equipment lookup failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}
