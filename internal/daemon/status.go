package daemon

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
	"git.home.luguber.info/inful/bookship/internal/runstore"
	"git.home.luguber.info/inful/bookship/internal/version"
)

// StatusResponse is the admin /status document.
type StatusResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Pipeline    string                 `json:"pipeline"`
	Ref         string                 `json:"ref"`
	StartTime   time.Time              `json:"start_time"`
	Uptime      string                 `json:"uptime"`
	QueueLength int                    `json:"queue_length"`
	Groups      []pipeline.GroupStatus `json:"groups"`
	RecentRuns  []runstore.Run         `json:"recent_runs"`
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(d.startTime).Round(time.Second).String(),
	})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	cfg := d.currentConfig()

	recent, err := d.store.RecentRuns(r.Context(), 10)
	if err != nil {
		slog.Error("Failed to list recent runs", logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run store unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Version:     version.Version,
		Pipeline:    cfg.Pipeline.Name,
		Ref:         cfg.Pipeline.Ref,
		StartTime:   d.startTime,
		Uptime:      time.Since(d.startTime).Round(time.Second).String(),
		QueueLength: len(d.triggers),
		Groups:      d.groups.Snapshot(),
		RecentRuns:  recent,
	})
}

func (d *Daemon) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	runs, err := d.store.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (d *Daemon) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	run, events, err := d.store.GetRun(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to load run", logfields.RunID(id), logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "events": events})
}
