package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ap3pp3rs94/cellsuppress/pkg/suppress"
	"github.com/Ap3pp3rs94/cellsuppress/services/suppressor/internal/ledger"
)

// upgrader mirrors the crypto-stream service's dialer defaults (same
// buffer sizes) but on the accept side: the teacher's only websocket use
// is the client dialer in crypto-stream's runWS, so this is that same
// dependency adapted to the inverse role for a dashboard to subscribe
// to a single suppression job's progress instead of Binance subscribing
// out to us.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type liveEvent struct {
	Pass          int    `json:"pass"`
	Partition     string `json:"partition"`
	ScanDim       string `json:"scan_dim"`
	NewlyRedacted int    `json:"newly_redacted"`
}

type liveDone struct {
	RunID string         `json:"run_id"`
	Stats suppress.Stats `json:"stats"`
	Error string         `json:"error,omitempty"`
}

// handleLive runs one suppression job and streams a ProgressEvent as a
// JSON text frame after every axis scan, followed by a final frame
// carrying the run id and stats (or an error). The first message the
// client sends after the upgrade carries the same {records, config} shape
// as the /v1/suppress request body.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn(r.Context(), "live_upgrade_failed", map[string]any{"err": err.Error()})
		}
		return
	}
	defer conn.Close()

	_, body, err := conn.ReadMessage()
	if err != nil {
		return
	}

	var req suppressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		_ = conn.WriteJSON(liveDone{Error: "invalid request json"})
		return
	}

	started := time.Now().UTC()
	result, err := suppress.SuppressWithProgress(req.Records, req.Config, func(ev suppress.ProgressEvent) {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteJSON(liveEvent{
			Pass:          ev.Pass,
			Partition:     strings.Join(ev.Axis.Partition, ","),
			ScanDim:       ev.Axis.ScanDim,
			NewlyRedacted: ev.NewlyRedacted,
		})
	})
	finished := time.Now().UTC()
	if err != nil {
		_ = conn.WriteJSON(liveDone{Error: err.Error()})
		return
	}

	runID, uerr := newRunID()
	if uerr != nil {
		_ = conn.WriteJSON(liveDone{Error: "generating run id"})
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

	_ = conn.WriteJSON(liveDone{RunID: runID, Stats: result.Stats})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
