// Package httpapi implements the Request API transport on
// top of net/http, fronted by the shared CORS and logging middleware
// (core/cors.go, core/middleware.go).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/engine"
	"github.com/kestrelfi/patternrunner/reqcontext"
)

// Server exposes the engine's logical operations over HTTP.
type Server struct {
	eng    *engine.Engine
	http   *http.Server
	logger core.Logger
}

// New builds a Server bound to eng, applying cfg.HTTP's timeouts and CORS
// policy.
func New(eng *engine.Engine) *Server {
	cfg := eng.Config
	mux := http.NewServeMux()
	s := &Server{eng: eng, logger: eng.Logger}

	mux.HandleFunc("POST /v1/patterns/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/patterns", s.handleListPatterns)
	mux.HandleFunc("GET /v1/capabilities", s.handleListCapabilities)
	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /v1/route", s.handleRouteIntent)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	handler = core.CORSMiddleware(&cfg.HTTP.CORS)(handler)
	handler = core.LoggingMiddleware(s.logger, cfg.Logging.Level == "debug")(handler)

	s.http = &http.Server{
		Addr:         "0.0.0.0:" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the process is asked to stop.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]interface{}{"addr": s.http.Addr})
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within cfg.HTTP.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := s.eng.Loader.List()
	out := make([]map[string]interface{}, len(patterns))
	for i, p := range patterns {
		out[i] = map[string]interface{}{
			"id": p.ID, "version": p.Version, "category": p.Category,
			"description": p.Description, "tags": p.Tags,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"patterns": out})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": s.eng.Registry.ListCapabilities()})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": s.eng.Registry.ListAgents()})
}

type routeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleRouteIntent(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewEngineError(core.KindInvalidInput, "httpapi.handleRouteIntent", "malformed request body", core.ErrInvalidInput))
		return
	}

	candidates, err := s.eng.Router.Match(req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, len(candidates))
	for i, c := range candidates {
		out[i] = map[string]interface{}{"pattern_id": c.PatternID, "score": c.Score}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": out})
}

type executeRequest struct {
	UserID           string                 `json:"user_id"`
	PortfolioID      string                 `json:"portfolio_id"`
	AsOfDate         string                 `json:"as_of_date"`
	PricingPackID    string                 `json:"pricing_pack_id"`
	LedgerCommitHash string                 `json:"ledger_commit_hash"`
	CorrelationID    string                 `json:"correlation_id"`
	TimeoutSeconds   int                    `json:"timeout_seconds"`
	Inputs           map[string]interface{} `json:"inputs"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	patternID := r.PathValue("id")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewEngineError(core.KindInvalidInput, "httpapi.handleExecute", "malformed request body", core.ErrInvalidInput))
		return
	}

	p, err := s.eng.Loader.Get(patternID)
	if err != nil {
		writeError(w, err)
		return
	}

	asOf := time.Now()
	if req.AsOfDate != "" {
		if parsed, perr := time.Parse("2006-01-02", req.AsOfDate); perr == nil {
			asOf = parsed
		}
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.eng.Config.Execution.DefaultTimeout
	}

	result, err := s.eng.Orchestrator.Execute(requestContext(r.Context(), req, asOf, timeout), p, req.Inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outputs":    result.Outputs,
		"trace":      result.Trace,
		"provenance": result.Provenance,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := core.Kind("Internal")

	if ee, ok := err.(*core.EngineError); ok {
		kind = ee.Kind
		switch ee.Kind {
		case core.KindInvalidInput, core.KindValidationFailure:
			status = http.StatusBadRequest
		case core.KindAccessDenied:
			status = http.StatusForbidden
		case core.KindUnknownPattern, core.KindUnknownCapability, core.KindPackNotFound:
			status = http.StatusNotFound
		case core.KindUnresolvedIntent:
			status = http.StatusUnprocessableEntity
		case core.KindMissingPricingPack, core.KindRequiredContextMissing:
			status = http.StatusUnprocessableEntity
		case core.KindCircuitOpen, core.KindBackpressure:
			status = http.StatusServiceUnavailable
		case core.KindDeadlineExceeded:
			status = http.StatusGatewayTimeout
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{"kind": kind, "message": err.Error()},
	})
}

func requestContext(parent context.Context, req executeRequest, asOf time.Time, timeout time.Duration) *reqcontext.Context {
	return reqcontext.New(parent, reqcontext.Params{
		UserID:           req.UserID,
		PortfolioID:      req.PortfolioID,
		AsOfDate:         asOf,
		PricingPackID:    req.PricingPackID,
		LedgerCommitHash: req.LedgerCommitHash,
		CorrelationID:    req.CorrelationID,
		Timeout:          timeout,
	})
}
