package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// startServers binds both listeners up front so port conflicts surface as
// one aggregate error instead of a half-started daemon.
func (d *Daemon) startServers() error {
	cfg := d.currentConfig()

	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "webhook", port: cfg.Daemon.HTTP.WebhookPort},
		{name: "admin", port: cfg.Daemon.HTTP.AdminPort},
	}
	var bindErrs []error
	for i := range binds {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", binds[i].port))
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	d.webhookSrv = &http.Server{
		Handler:      wrapHandler(d.webhookMux()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	d.adminSrv = &http.Server{
		Handler:      wrapHandler(d.adminMux()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go serveHTTP("webhook", d.webhookSrv, binds[0].ln)
	go serveHTTP("admin", d.adminSrv, binds[1].ln)
	return nil
}

func serveHTTP(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server error", slog.String("server", name), logfields.Error(err))
	}
}

// webhookMux serves only the delivery endpoint; everything operational
// lives on the admin port.
func (d *Daemon) webhookMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", d.handleWebhook)
	return mux
}

func (d *Daemon) adminMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.HandleFunc("/status", d.handleStatus)
	mux.Handle("/metrics", d.metricsHTTP)
	mux.HandleFunc("/runs", d.handleRuns)
	mux.HandleFunc("/runs/", d.handleRun)
	return mux
}
