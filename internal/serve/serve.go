// Package serve implements the local preview loop: it renders the book into
// a scratch directory, serves the result over HTTP and pushes reload events
// to open browsers whenever the sources change.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/config"
	"git.home.luguber.info/inful/bookship/internal/logfields"
	"git.home.luguber.info/inful/bookship/internal/render"
)

// rebuildDebounce is how long the watcher waits after the last change before
// rebuilding, so one save producing several events renders once.
const rebuildDebounce = 300 * time.Millisecond

const shutdownTimeout = 5 * time.Second

// Server renders and serves a single book from a scratch directory that is
// removed when Run returns.
type Server struct {
	cfg     *config.Config
	bookDir string
	addr    string
	siteDir string
	open    bool

	hub      *Hub
	renderer *render.Renderer

	mu sync.Mutex // serializes rebuilds
}

// New prepares a preview server for the book rooted at bookDir. The rendered
// site lives in a fresh temp directory owned by the server.
func New(cfg *config.Config, bookDir string) (*Server, error) {
	abs, err := filepath.Abs(bookDir)
	if err != nil {
		return nil, fmt.Errorf("resolve book directory: %w", err)
	}
	siteDir, err := os.MkdirTemp("", "bookship-serve-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch site directory: %w", err)
	}
	return &Server{
		cfg:      cfg,
		bookDir:  abs,
		addr:     cfg.Serve.Addr,
		siteDir:  siteDir,
		open:     cfg.Serve.Open,
		hub:      NewHub(),
		renderer: render.New(),
	}, nil
}

// Run builds the book, then serves it until ctx is canceled. The first build
// must succeed; later rebuild failures are logged and the previous output
// stays up.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		s.hub.Shutdown()
		if err := os.RemoveAll(s.siteDir); err != nil {
			slog.Warn("Failed to remove scratch site directory", logfields.Dir(s.siteDir), logfields.Error(err))
		}
	}()

	if err := s.rebuild(); err != nil {
		return fmt.Errorf("initial build: %w", err)
	}

	watcher, err := newSourceWatcher(s.bookDir)
	if err != nil {
		slog.Warn("Source watch unavailable, automatic rebuilds disabled", logfields.Error(err))
	} else {
		defer func() { _ = watcher.Close() }()
		go s.watchLoop(ctx, watcher)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	if s.open {
		go openBrowser("http://" + ln.Addr().String())
	}
	return s.serve(ctx, ln)
}

// openBrowser starts the platform browser for url. Failures only log, the
// preview stays reachable by hand.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Warn("Failed to open browser", logfields.URL(url), logfields.Error(err))
	}
}

// serve runs the HTTP server on ln until ctx is canceled. SSE connections
// are long-lived, so the server carries no read or write timeouts.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.routes(), IdleTimeout: 300 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Preview server listening",
		logfields.URL("http://"+ln.Addr().String()), logfields.Dir(s.bookDir))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Disconnect the SSE clients first, an open event stream would hold up
	// the graceful shutdown until its timeout.
	s.hub.Shutdown()
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("shutdown preview server: %w", err)
	}
	slog.Info("Preview server stopped")
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", s.hub)
	mux.HandleFunc("/livereload.js", handleScript)
	mux.Handle("/", injectScript(http.FileServer(http.Dir(s.siteDir))))
	return mux
}

// rebuild loads and renders the book into the scratch directory, then
// broadcasts the new fingerprint. Stale files from removed chapters are left
// behind until the server restarts, matching what the renderer promises.
func (s *Server) rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	b, err := book.Load(s.bookDir)
	if err != nil {
		return err
	}
	res, err := s.renderer.Render(b, s.siteDir)
	if err != nil {
		return err
	}
	slog.Info("Book rebuilt",
		slog.String("title", b.Title()), slog.Int("pages", res.Pages),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))
	s.hub.Broadcast(b.Fingerprint)
	return nil
}

func (s *Server) rebuildLogged() {
	if err := s.rebuild(); err != nil {
		slog.Error("Rebuild failed, previous output stays up", logfields.Error(err))
	}
}

// watchLoop turns watcher events into debounced rebuilds.
func (s *Server) watchLoop(ctx context.Context, w *sourceWatcher) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if shouldIgnoreEvent(ev.Name) {
				continue
			}
			w.watchCreated(ev)
			slog.Debug("Source change detected", logfields.File(ev.Name), slog.String("op", ev.Op.String()))
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(rebuildDebounce, s.rebuildLogged)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("Source watcher error", logfields.Error(err))
		}
	}
}
