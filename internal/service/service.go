// Package service exposes the pipeline over a JSON http API: clients post
// the games they detect and poll for the badges and the pipeline log.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bgageek-backend/internal/assert"
	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/telemetry"
)

const (
	report_service_decode = "service.decode"
	report_service_encode = "service.encode"
	report_service_reset  = "service.reset"
	report_service_rescan = "service.rescan"
)

// Service implements the http handlers, the pipeline itself is driven by
// whoever calls Scheduler.Run.
type Service struct {
	scheduler   *pipeline.Scheduler
	scanner     pipeline.Scanner
	board       *Board
	logs        *LogBuffer
	accessToken string
	tel         telemetry.API
}

type serviceConfig struct {
	accessToken string
	tel         telemetry.API
}

type Option func(cfg *serviceConfig)

// WithAccessToken requires a bearer token on every request that changes state.
func WithAccessToken(token string) Option {
	return func(cfg *serviceConfig) {
		cfg.accessToken = token
	}
}

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

func NewService(
	scheduler *pipeline.Scheduler,
	scanner pipeline.Scanner,
	board *Board,
	logs *LogBuffer,
	options ...Option,
) Service {
	assert.NotNil(scheduler)
	assert.NotNil(scanner)
	assert.NotNil(board)
	assert.NotNil(logs)

	cfg := serviceConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	s := Service{
		scheduler:   scheduler,
		scanner:     scanner,
		board:       board,
		logs:        logs,
		accessToken: cfg.accessToken,
		tel:         telemetry.SlogAPI{},
	}
	if cfg.tel != nil {
		s.tel = cfg.tel
	}
	s.tel = telemetry.NewScopedAPI("service", s.tel)
	return s
}

// Register adds the service's routes to mux.
func (s Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /badges", s.handleBadges)
	mux.HandleFunc("GET /log", s.handleLog)
	mux.Handle("POST /enqueue", s.requireToken(http.HandlerFunc(s.handleEnqueue)))
	mux.Handle("POST /cache/reset-mappings", s.requireToken(http.HandlerFunc(s.handleResetMappings)))
	mux.Handle("POST /cache/reset-stats", s.requireToken(http.HandlerFunc(s.handleResetStats)))
	mux.Handle("POST /rescan", s.requireToken(http.HandlerFunc(s.handleRescan)))
}

func (s Service) requireToken(next http.Handler) http.Handler {
	if s.accessToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.Split(r.Header.Get("Authorization"), " ")
		if len(token) != 2 || token[1] != s.accessToken {
			s.writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s Service) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportBroken(report_service_encode, err)
	}
}

func (s Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type EnqueueRequest struct {
	Tasks []pipeline.Task `json:"tasks"`
}

type EnqueueResponse struct {
	Outcomes []pipeline.Outcome `json:"outcomes"`
}

func (s Service) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.tel.ReportDebug(report_service_decode, err)
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	for i, task := range req.Tasks {
		if task.ExternalID == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("task %d has no externalId", i))
			return
		}
		switch task.Mode {
		case pipeline.MODE_LIST, pipeline.MODE_PANEL:
		case "":
			req.Tasks[i].Mode = pipeline.MODE_LIST
		default:
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("task %d has unknown mode %q", i, task.Mode))
			return
		}
		if task.Target == "" {
			req.Tasks[i].Target = task.ExternalID
		}
	}

	res := EnqueueResponse{Outcomes: make([]pipeline.Outcome, len(req.Tasks))}
	for i, task := range req.Tasks {
		res.Outcomes[i] = s.scheduler.Enqueue(r.Context(), task)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduler.Status())
}

type BadgesResponse struct {
	Badges []Badge `json:"badges"`
}

func (s Service) handleBadges(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, BadgesResponse{
		Badges: s.board.Badges(r.URL.Query().Get("prefix")),
	})
}

type LogResponse struct {
	Lines []LogLine `json:"lines"`
}

func (s Service) handleLog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, LogResponse{Lines: s.logs.Lines()})
}

type ResetResponse struct {
	Deleted int `json:"deleted"`
}

func (s Service) handleResetMappings(w http.ResponseWriter, r *http.Request) {
	count, err := s.scheduler.ResetMappings(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_service_reset, err, "mappings")
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ResetResponse{Deleted: count})
}

func (s Service) handleResetStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.scheduler.ResetStats(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_service_reset, err, "stats")
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	// badges show stats that are no longer cached
	s.board.Clear()
	s.writeJSON(w, http.StatusOK, ResetResponse{Deleted: count})
}

type RescanResponse struct {
	Found int    `json:"found"`
	Error string `json:"error,omitempty"`
}

func (s Service) handleRescan(w http.ResponseWriter, r *http.Request) {
	count, err := s.scheduler.ForceRescan(r.Context(), s.scanner)
	res := RescanResponse{Found: count}
	if err != nil {
		s.tel.ReportWarning(report_service_rescan, err)
		res.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, res)
}
