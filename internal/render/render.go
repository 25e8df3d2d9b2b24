// Package render turns a loaded book into a static HTML site: one page per
// chapter mirroring the source layout, a sidebar with the numbered summary,
// prev/next navigation, a search index, and the static assets the pages
// reference.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// Renderer converts chapter Markdown to HTML pages. One Renderer is safe to
// reuse across builds; per-page state (heading id deduplication) lives in the
// parse context.
type Renderer struct {
	md goldmark.Markdown
}

// New returns a Renderer with the book dialect: GFM extensions, heading ids
// from chapter titles, and raw HTML passed through like the original tool.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Result summarizes a completed render.
type Result struct {
	OutDir string
	Pages  int // chapter pages written, including the index copy and 404
	Assets int // non-page files written or copied
}

// Render writes the complete site for b into outDir. Existing files are
// overwritten; files from earlier renders that no longer belong to the book
// are not removed, callers wanting a clean tree start from an empty outDir.
func (r *Renderer) Render(b *book.Book, outDir string) (*Result, error) {
	chapters := b.Chapters()
	if len(chapters) == 0 {
		return nil, fmt.Errorf("book %q has no renderable chapters", b.Title())
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	res := &Result{OutDir: outDir}
	index := newSearchIndex()

	for i, ch := range chapters {
		page, err := r.renderPage(b, chapters, i, ch.Path)
		if err != nil {
			return nil, fmt.Errorf("chapter %q: %w", ch.Title, err)
		}
		if err := writeOutputFile(outDir, ch.Path, page.html); err != nil {
			return nil, err
		}
		index.add(ch, page.text)
		res.Pages++
	}

	// The landing page is a copy of the first chapter, re-rendered so its
	// relative links resolve from the site root.
	if chapters[0].Path != "index.html" {
		page, err := r.renderPage(b, chapters, 0, "index.html")
		if err != nil {
			return nil, fmt.Errorf("index page: %w", err)
		}
		if err := writeOutputFile(outDir, "index.html", page.html); err != nil {
			return nil, err
		}
		res.Pages++
	}

	if err := r.renderNotFound(b, chapters, outDir); err != nil {
		return nil, err
	}
	res.Pages++

	assets, err := writeAssets(b, outDir)
	if err != nil {
		return nil, err
	}
	res.Assets += assets

	copied, err := copyStaticFiles(b.SrcDir, outDir)
	if err != nil {
		return nil, err
	}
	res.Assets += copied

	if err := index.write(outDir); err != nil {
		return nil, err
	}
	res.Assets++

	slog.Debug("Book rendered",
		logfields.Dir(outDir),
		logfields.Count(res.Pages),
		slog.Int("assets", res.Assets))
	return res, nil
}

// renderNotFound writes 404.html. A src/404.md file replaces the built-in
// body. Asset and navigation links are root-absolute because the page is
// served for arbitrary missing paths.
func (r *Renderer) renderNotFound(b *book.Book, chapters []*book.Chapter, outDir string) error {
	source := []byte(defaultNotFoundSource)
	title := "Page not found"
	if custom, err := os.ReadFile(filepath.Join(b.SrcDir, "404.md")); err == nil {
		source = custom
	}

	page, err := r.renderContent(b, chapters, -1, source, title, "/", "")
	if err != nil {
		return fmt.Errorf("404 page: %w", err)
	}
	return writeOutputFile(outDir, "404.html", page.html)
}

const defaultNotFoundSource = `# Document not found (404)

The page you were looking for does not exist here. It may have moved with a
chapter rename, or the link that brought you here is out of date. The summary
on the left lists every page of this book.
`

// writeOutputFile writes data under outDir after confirming relPath stays
// inside it.
func writeOutputFile(outDir, relPath string, data []byte) error {
	cleanRel := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(cleanRel) || cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path %s escapes the output directory", relPath)
	}

	fullPath := filepath.Join(outDir, cleanRel)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// #nosec G306 -- rendered pages and assets are public site files
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}
