package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apierrors "github.com/Ap3pp3rs94/cellsuppress/pkg/errors"
	"github.com/Ap3pp3rs94/cellsuppress/pkg/suppress"
	"github.com/Ap3pp3rs94/cellsuppress/pkg/telemetry"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/internal/ledger"
)

type suppressRequest struct {
	Records []suppress.Record `json:"records"`
	Config  suppress.Config   `json:"config"`
}

type suppressResponse struct {
	RunID string          `json:"run_id"`
	Data  []suppress.OutputRow `json:"data"`
	Stats suppress.Stats  `json:"stats"`
}

// handleSuppress runs the engine synchronously over a posted dataset and
// records the run in the ledger, per the core spec's CLI/API contract
// (§6): success returns {data, stats}; any engine error is surfaced as a
// structured error envelope, never a partial result.
func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeErr(w, apierrors.SuppressMalformedInput, "reading request body", r)
		return
	}
	defer r.Body.Close()

	var req suppressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, apierrors.SuppressMalformedInput, "invalid request json", r)
		return
	}

	started := time.Now().UTC()
	result, err := suppress.Suppress(req.Records, req.Config)
	finished := time.Now().UTC()
	_ = telemetry.ObserveHistogram(s.meter(), r.Context(), "suppress_run_seconds",
		finished.Sub(started).Seconds(), telemetry.DefaultHistogramBuckets(), nil)
	if err != nil {
		_ = telemetry.IncCounter(s.meter(), r.Context(), "suppress_run_errors_total", 1, nil)
		writeEngineErr(w, err, r)
		return
	}
	_ = telemetry.IncCounter(s.meter(), r.Context(), "suppress_run_total", 1, nil)
	_ = telemetry.SetGauge(s.meter(), r.Context(), "suppress_last_run_redacted_cells", float64(result.Stats.RedactedCells), nil)

	runID, uerr := newRunID()
	if uerr != nil {
		writeErr(w, apierrors.Internal, "generating run id", r)
		return
	}

	if s.Ledger != nil {
		rec := ledger.Record{
			ID:         runID,
			InputHash:  hashJSON(req.Records),
			ConfigHash: hashJSON(req.Config),
			Stats:      result.Stats,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err := s.Ledger.Put(r.Context(), rec); err != nil && s.Log != nil {
			s.Log.Warn(r.Context(), "ledger_put_failed", map[string]any{"run_id": runID, "err": err.Error()})
		}
	}

	if s.Log != nil {
		s.Log.Info(r.Context(), "suppress_run_completed", map[string]any{
			"run_id":         runID,
			"passes":         result.Stats.Passes,
			"redacted_cells": result.Stats.RedactedCells,
			"total_cells":    result.Stats.TotalCells,
			"duration_ms":    finished.Sub(started).Milliseconds(),
		})
	}

	writeJSON(w, http.StatusOK, suppressResponse{RunID: runID, Data: result.Rows, Stats: result.Stats})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.Ledger == nil {
		writeErr(w, apierrors.DependencyDown, "run ledger not configured", r)
		return
	}
	rec, err := s.Ledger.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		writeErr(w, apierrors.StorageNotFound, "run not found", r)
		return
	}
	if err != nil {
		writeErr(w, apierrors.Internal, "fetching run", r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeErr(w, apierrors.DependencyDown, "run ledger not configured", r)
		return
	}
	recs, err := s.Ledger.List(r.Context(), 100)
	if err != nil {
		writeErr(w, apierrors.Internal, "listing runs", r)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// writeEngineErr maps the core engine's three sentinel error kinds to
// structured HTTP error codes (§7 of the core spec: all three are
// surfaced to the caller, none are retried).
func writeEngineErr(w http.ResponseWriter, err error, r *http.Request) {
	switch {
	case errors.Is(err, suppress.ErrInvalidConfig):
		writeErr(w, apierrors.SuppressInvalidConfig, err.Error(), r)
	case errors.Is(err, suppress.ErrMalformedInput):
		writeErr(w, apierrors.SuppressMalformedInput, err.Error(), r)
	case errors.Is(err, suppress.ErrInvariantViolation):
		writeErr(w, apierrors.SuppressInvariantViolation, err.Error(), r)
	default:
		writeErr(w, apierrors.Internal, err.Error(), r)
	}
}

func writeErr(w http.ResponseWriter, code apierrors.Code, msg string, r *http.Request) {
	env := apierrors.NewEnvelope(code, msg, r.Header.Get("X-Request-Id"), "", nil)
	apierrors.WriteHTTP(w, apierrors.HTTPStatusFor(code), env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newRunID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	h := hex.EncodeToString(b[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]), nil
}
