// Package api exposes the suppression engine over HTTP: a synchronous run
// endpoint, a run-history lookup backed by the ledger, and a websocket
// feed of per-pass progress for long-running jobs.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Ap3pp3rs94/cellsuppress/pkg/telemetry"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/internal/ledger"
)

// Server wires the engine, the run ledger, structured logging, and a
// metrics sink behind the HTTP surface. Meter defaults to a no-op sink
// (telemetry.NopMeterInstance) when nil, so the handlers never need a
// nil check before recording.
type Server struct {
	Ledger ledger.Store
	Log    *telemetry.Logger
	Meter  telemetry.Meter
}

func (s *Server) meter() telemetry.Meter {
	if s.Meter == nil {
		return telemetry.NopMeterInstance
	}
	return s.Meter
}

// NewRouter builds the route table, mirroring the control-plane
// coordinator's mux.NewRouter()+path-variable style.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/suppress", s.handleSuppress).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/runs/{id}", s.handleGetRun).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/runs", s.handleListRuns).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/suppress/live", s.handleLive).Methods(http.MethodGet, http.MethodOptions)
	return r
}

// handleHealth reports engine readiness and, when a ledger is
// configured, its connectivity, using the same bounded/normalized
// health-report shape the control-plane services use.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	now := time.Now().UTC()
	comps := []telemetry.ComponentStatus{{
		Name:      "engine",
		Status:    telemetry.StatusOK,
		CheckedAt: now,
	}}

	ledgerStatus := telemetry.StatusOK
	ledgerMsg := "not configured"
	if s.Ledger != nil {
		if err := s.Ledger.Ping(r.Context()); err != nil {
			ledgerStatus = telemetry.StatusFatal
			ledgerMsg = err.Error()
		} else {
			ledgerMsg = "ok"
		}
	} else {
		ledgerStatus = telemetry.StatusUnknown
	}
	comps = append(comps, telemetry.ComponentStatus{
		Name:      "ledger",
		Status:    ledgerStatus,
		CheckedAt: now,
		Message:   ledgerMsg,
	})

	snap, err := telemetry.NewHealthSnapshot("suppressor", "", "", comps, now)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error()})
		return
	}

	status := http.StatusOK
	if snap.Overall == telemetry.StatusFatal {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
