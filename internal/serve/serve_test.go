package serve

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/config"
)

func writeBookDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return dir
}

func minimalBook() map[string]string {
	return map[string]string{
		"book.toml":      "[book]\ntitle = \"Handbook\"\n",
		"src/SUMMARY.md": "# Summary\n\n[Intro](README.md)\n\n- [Guide](guide.md)\n",
		"src/README.md":  "# Welcome\n\nHello.\n",
		"src/guide.md":   "# Guide\n\nDo things.\n",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bookDir := writeBookDir(t, minimalBook())
	cfg := &config.Config{Serve: config.ServeConfig{Addr: "127.0.0.1:0"}}
	s, err := New(cfg, bookDir)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.hub.Shutdown()
		_ = os.RemoveAll(s.siteDir)
	})
	return s
}

func currentHash(s *Server) string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return s.hub.lastHash
}

func TestNewCreatesScratchDir(t *testing.T) {
	s := newTestServer(t)

	fi, err := os.Stat(s.siteDir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	require.Equal(t, "127.0.0.1:0", s.addr)
	require.True(t, filepath.IsAbs(s.bookDir))
}

func TestRebuildRendersAndBroadcasts(t *testing.T) {
	s := newTestServer(t)

	require.NoError(t, s.rebuild())
	require.FileExists(t, filepath.Join(s.siteDir, "index.html"))
	require.FileExists(t, filepath.Join(s.siteDir, "guide.html"))
	require.NotEmpty(t, currentHash(s))
}

func TestRebuildFailureKeepsPreviousSite(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rebuild())

	require.NoError(t, os.Remove(filepath.Join(s.bookDir, "src", "SUMMARY.md")))
	require.Error(t, s.rebuild())
	require.FileExists(t, filepath.Join(s.siteDir, "index.html"))
}

func TestRoutesServeInjectedPages(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rebuild())

	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Handbook")
	require.Contains(t, body, scriptTag)

	resp, err = http.Get(srv.URL + "/livereload.js")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "EventSource")
}

func TestWatchLoopRebuildsOnChange(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rebuild())
	base := currentHash(s)

	watcher, err := newSourceWatcher(s.bookDir)
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go s.watchLoop(ctx, watcher)

	guide := filepath.Join(s.bookDir, "src", "guide.md")
	require.NoError(t, os.WriteFile(guide, []byte("# Guide\n\nRewritten.\n"), 0o600))

	require.Eventually(t, func() bool { return currentHash(s) != base },
		5*time.Second, 50*time.Millisecond)

	rendered, err := os.ReadFile(filepath.Join(s.siteDir, "guide.html"))
	require.NoError(t, err)
	require.Contains(t, string(rendered), "Rewritten.")
}

func TestWatchLoopPicksUpNewDirectories(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rebuild())

	watcher, err := newSourceWatcher(s.bookDir)
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go s.watchLoop(ctx, watcher)

	// A chapter added inside a brand-new directory must still trigger a
	// rebuild once the summary references it.
	nested := filepath.Join(s.bookDir, "src", "extra")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(nested, "notes.md"), []byte("# Notes\n"), 0o600))

	base := currentHash(s)
	summary := "# Summary\n\n[Intro](README.md)\n\n- [Guide](guide.md)\n- [Notes](extra/notes.md)\n"
	require.NoError(t, os.WriteFile(filepath.Join(s.bookDir, "src", "SUMMARY.md"), []byte(summary), 0o600))

	require.Eventually(t, func() bool { return currentHash(s) != base },
		5*time.Second, 50*time.Millisecond)
	require.FileExists(t, filepath.Join(s.siteDir, "extra", "notes.html"))
}

func TestShouldIgnoreEvent(t *testing.T) {
	require.True(t, shouldIgnoreEvent("/tmp/.hidden.md"))
	require.True(t, shouldIgnoreEvent("/tmp/#guide.md#"))
	require.True(t, shouldIgnoreEvent("/tmp/.guide.md.swp"))
	require.True(t, shouldIgnoreEvent("/tmp/guide.md~"))
	require.True(t, shouldIgnoreEvent("/tmp/.DS_Store"))
	require.False(t, shouldIgnoreEvent("/tmp/guide.md"))
	require.False(t, shouldIgnoreEvent("/tmp/src/guide.md"))
}

func TestServeLifecycle(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rebuild())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
