package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ladderwatch/internal/domain"
	"ladderwatch/internal/ingest"
	"ladderwatch/internal/recordstore"

	"github.com/rs/zerolog"
)

// Server is the thin HTTP surface over the orchestrator. It translates
// requests and never participates in ingestion logic.
type Server struct {
	orch    *ingest.Orchestrator
	records *recordstore.Store
	logger  zerolog.Logger
}

func NewServer(orch *ingest.Orchestrator, records *recordstore.Store, logger zerolog.Logger) *Server {
	return &Server{orch: orch, records: records, logger: logger}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/ingestion/status", s.handleStatus)
	mux.HandleFunc("GET /api/ingestion/stats", s.handleStats)
	mux.HandleFunc("POST /api/ingestion/start", s.handleStart)
	mux.HandleFunc("POST /api/ingestion/stop", s.handleStop)
	mux.HandleFunc("POST /api/ingestion/run", s.handleRun)
	mux.HandleFunc("POST /api/ingestion/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /api/matches/{date}", s.handleMatches)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.orch.Stats(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.orch.Start()
	writeSuccess(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.orch.Stop()
	writeSuccess(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.RunOnce(r.Context())
	if errors.Is(err, ingest.ErrCycleInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.orch.Cleanup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"removedDates": removed})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.PathValue("date"))
	if _, err := domain.ParseDateKey(date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	matches := s.records.Get(r.Context(), date)
	writeSuccess(w, http.StatusOK, map[string]any{"date": date, "count": len(matches), "matches": matches})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
