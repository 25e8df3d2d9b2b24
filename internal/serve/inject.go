package serve

import (
	"log/slog"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// liveReloadScript is the client side of the hub: it remembers the first
// fingerprint it sees and reloads the page when a later one differs.
const liveReloadScript = `(() => {
  if (window.__BOOKSHIP_LR__) return;
  window.__BOOKSHIP_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let first = true;
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (first) { current = p.hash; first = false; return; }
        if (p.hash && p.hash !== current) {
          console.log('[bookship] change detected, reloading');
          location.reload();
        }
      } catch (_) {}
    };
    es.onerror = () => {
      es.close();
      setTimeout(connect, 2000);
    };
  }
  connect();
})();
`

const scriptTag = `<script async src="/livereload.js"></script>`

// maxInjectSize bounds how much of a response is buffered while looking for
// the closing body tag. Larger pages are streamed through unmodified.
const maxInjectSize = 512 * 1024

func handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	if _, err := w.Write([]byte(liveReloadScript)); err != nil {
		slog.Debug("Livereload script write failed", logfields.Error(err))
	}
}

// injectScript wraps next so HTML pages leave with the livereload client
// script before their closing body tag. Asset requests pass through.
func injectScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		htmlPage := path == "" || path == "/" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, ".html")
		if !htmlPage {
			next.ServeHTTP(w, r)
			return
		}
		inj := &scriptInjector{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

// scriptInjector buffers an HTML response so the script tag can be spliced
// in before the closing body tag. Non-HTML responses and responses larger
// than maxInjectSize switch to passthrough.
type scriptInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
}

func (l *scriptInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *scriptInjector) Write(data []byte) (int, error) {
	if !l.headerWritten && !l.passthrough && l.buffer == nil {
		contentType := l.ResponseWriter.Header().Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") {
			l.passthrough = true
			l.ResponseWriter.WriteHeader(l.statusCode)
			l.headerWritten = true
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}

	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}

	if len(l.buffer)+len(data) > maxInjectSize {
		l.passthrough = true
		l.ResponseWriter.Header().Del("Content-Length")
		l.ResponseWriter.WriteHeader(l.statusCode)
		l.headerWritten = true
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
			l.buffer = nil
		}
		return l.ResponseWriter.Write(data)
	}

	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

// finalize flushes the buffered page with the script tag spliced in. Must be
// called after the wrapped handler returns.
func (l *scriptInjector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}

	page := strings.Replace(string(l.buffer), "</body>", scriptTag+"</body>", 1)
	l.ResponseWriter.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	if _, err := l.ResponseWriter.Write([]byte(page)); err != nil {
		slog.Debug("Livereload injection write failed", logfields.Error(err))
	}
}
