package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// pushEvent is the subset of the push payload shared by GitHub, Gitea and
// Forgejo.
type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// handleWebhook accepts forge push deliveries. Pushes to foreign refs are
// acknowledged and ignored; matching pushes are queued for a run.
func (d *Daemon) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	event := forgeEvent(r)
	slog.Debug("Webhook delivery received",
		slog.String("event", event),
		logfields.ContentLength(r.ContentLength),
		logfields.UserAgent(r.UserAgent()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable payload"})
		return
	}

	secret := d.currentConfig().Daemon.WebhookSecret
	if secret != "" && !verifySignature(body, secret, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("Webhook rejected, invalid signature", logfields.RemoteAddr(r.RemoteAddr))
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	switch event {
	case "ping":
		d.rec.IncWebhook(event, true)
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case "push":
	default:
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "unsupported_event"})
		return
	}

	var ev pushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if ev.Ref == "" {
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "push payload missing ref"})
		return
	}

	ref := config.NormalizeRef(ev.Ref)
	cfg := d.currentConfig()
	if ref != cfg.Pipeline.Ref {
		slog.Debug("Push ignored, ref does not match pipeline",
			logfields.Ref(ref), slog.String("pipeline_ref", cfg.Pipeline.Ref))
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "ref_mismatch"})
		return
	}

	trig := pipeline.Trigger{Kind: pipeline.TriggerWebhook, Ref: ref, Commit: ev.After}
	select {
	case d.triggers <- trig:
		slog.Info("Push accepted",
			logfields.Ref(ref), logfields.Commit(ev.After), logfields.Repository(ev.Repository.CloneURL))
		d.rec.IncWebhook(event, true)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		slog.Warn("Push rejected, trigger queue full", logfields.Ref(ref))
		d.rec.IncWebhook(event, false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "trigger queue full"})
	}
}

// forgeEvent reads the event type header. GitHub and Gitea/Forgejo use
// different header names; deliveries without either are treated as pushes.
func forgeEvent(r *http.Request) string {
	if ev := r.Header.Get("X-GitHub-Event"); ev != "" {
		return ev
	}
	if ev := r.Header.Get("X-Gitea-Event"); ev != "" {
		return ev
	}
	return "push"
}

// verifySignature checks the HMAC SHA-256 payload signature.
func verifySignature(payload []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", logfields.Error(err))
	}
}
