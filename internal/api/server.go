package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tradepilot/internal/engine"
	"tradepilot/internal/models"
	"tradepilot/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the engine to the presentation layer over HTTP: status,
// balances, mode-filtered trades, quotes, the event stream, and the
// operator commands.
type Server struct {
	server *http.Server
	engine *engine.Engine
	hub    *telemetry.Hub
	logger *zap.Logger
}

// NewServer creates the API server.
func NewServer(port int, eng *engine.Engine, hub *telemetry.Hub, logger *zap.Logger) *Server {
	s := &Server{
		engine: eng,
		hub:    hub,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/status", s.statusHandler)
	mux.HandleFunc("GET /api/quotes", s.quotesHandler)
	mux.HandleFunc("GET /api/trades", s.tradesHandler)
	mux.HandleFunc("POST /api/trades", s.openTradeHandler)
	mux.HandleFunc("POST /api/trades/{id}/close", s.closeTradeHandler)
	mux.HandleFunc("GET /api/risk", s.riskHandler)
	mux.HandleFunc("PUT /api/risk", s.updateRiskHandler)
	mux.HandleFunc("POST /api/autopilot/toggle", s.toggleAutopilotHandler)
	mux.HandleFunc("POST /api/alert/dismiss", s.dismissAlertHandler)
	mux.HandleFunc("POST /api/mode", s.modeHandler)
	mux.HandleFunc("GET /api/insight", s.insightHandler)
	mux.HandleFunc("GET /api/audit", s.auditHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.ServeWS)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) quotesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Quotes())
}

// tradesHandler returns trades for the active mode; ?status=open narrows
// to active positions.
func (s *Server) tradesHandler(w http.ResponseWriter, r *http.Request) {
	var (
		trades []models.Trade
		err    error
	)
	if r.URL.Query().Get("status") == "open" {
		trades, err = s.engine.ActiveTrades()
	} else {
		trades, err = s.engine.Trades()
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

type openTradeRequest struct {
	Pair   string  `json:"pair"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
}

func (s *Server) openTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	trade, err := s.engine.OpenManualTrade(req.Pair, models.Side(req.Side), req.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) closeTradeHandler(w http.ResponseWriter, r *http.Request) {
	trade, err := s.engine.CloseTrade(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trade == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("trade not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *Server) riskHandler(w http.ResponseWriter, r *http.Request) {
	rc, err := s.engine.RiskConfig()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rc)
}

func (s *Server) updateRiskHandler(w http.ResponseWriter, r *http.Request) {
	var rc models.RiskConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	updated, err := s.engine.UpdateRiskConfig(rc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) toggleAutopilotHandler(w http.ResponseWriter, r *http.Request) {
	enabled := s.engine.ToggleAutopilot()
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) dismissAlertHandler(w http.ResponseWriter, r *http.Request) {
	s.engine.DismissAlert()
	w.WriteHeader(http.StatusNoContent)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) modeHandler(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.engine.SetMode(models.Mode(req.Mode)); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

func (s *Server) insightHandler(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("pair query parameter is required"))
		return
	}
	insight, err := s.engine.Insight(r.Context(), pair)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, insight)
}

func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	audit, err := s.engine.Audit(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, audit)
}
