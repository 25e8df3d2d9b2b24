package render

import (
	"bytes"
	"fmt"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/slug"
)

// renderedPage is one converted chapter: the full HTML document and the
// plain-text body feeding the search index.
type renderedPage struct {
	html []byte
	text string
}

// renderPage renders chapters[idx] for the output location relPath. The
// location is almost always the chapter's own path; the landing page copy
// passes "index.html" so relative links are computed from the root.
func (r *Renderer) renderPage(b *book.Book, chapters []*book.Chapter, idx int, relPath string) (*renderedPage, error) {
	ch := chapters[idx]
	edit := editURL(b.Config.Output.HTML.EditURLTemplate, ch.Source)
	return r.renderContent(b, chapters, idx, ch.Content, ch.Title, rootPrefix(relPath), edit)
}

// renderContent converts Markdown to a full HTML document. idx selects the
// active chapter for navigation; -1 renders a page outside the summary (the
// 404 page).
func (r *Renderer) renderContent(b *book.Book, chapters []*book.Chapter, idx int, source []byte, title, pathToRoot, edit string) (*renderedPage, error) {
	body, plain, err := r.renderMarkdown(source)
	if err != nil {
		return nil, err
	}

	data := pageData{
		BookTitle:    b.Title(),
		Title:        title,
		Description:  b.Config.Book.Description,
		Language:     b.Config.Book.Language,
		DefaultTheme: b.Config.Output.HTML.DefaultTheme,
		PathToRoot:   pathToRoot,
		Stylesheets:  stylesheets(b),
		Toc:          tocEntries(b, chapters, idx),
		EditURL:      edit,
		RepoURL:      b.Config.Output.HTML.GitRepositoryURL,
	}
	data.setContent(body)

	if idx > 0 {
		prev := chapters[idx-1]
		data.Prev = &navLink{Title: prev.Title, Href: prev.Path}
	}
	if idx >= 0 && idx < len(chapters)-1 {
		next := chapters[idx+1]
		data.Next = &navLink{Title: next.Title, Href: next.Path}
	}

	doc, err := executeLayout(data)
	if err != nil {
		return nil, err
	}
	return &renderedPage{html: doc, text: plain}, nil
}

// renderMarkdown parses source, rewrites intra-book links, and renders HTML.
// Heading ids come from the shared slugger so anchors are stable across the
// site and the link checker.
func (r *Renderer) renderMarkdown(source []byte) ([]byte, string, error) {
	pctx := parser.NewContext(parser.WithIDs(newHeadingIDs()))
	doc := r.md.Parser().Parse(text.NewReader(source), parser.WithContext(pctx))
	rewriteBookLinks(doc)

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), extractText(doc, source), nil
}

// rewriteBookLinks maps chapter-to-chapter Markdown links onto their rendered
// locations. Output paths mirror source paths, so the link itself is
// rewritten in place: README.md becomes index.html, .md becomes .html,
// fragments survive. External and site-absolute destinations pass through,
// as do images, whose files are copied verbatim next to the pages.
func rewriteBookLinks(doc gmast.Node) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if link, ok := n.(*gmast.Link); ok {
			link.Destination = []byte(rewriteDestination(string(link.Destination)))
		}
		return gmast.WalkContinue, nil
	})
}

func rewriteDestination(dest string) string {
	if isExternalDestination(dest) {
		return dest
	}
	pathPart, fragment, hasFragment := strings.Cut(dest, "#")
	if !strings.HasSuffix(strings.ToLower(pathPart), ".md") {
		return dest
	}
	out := book.OutputPath(pathPart)
	if hasFragment {
		return out + "#" + fragment
	}
	return out
}

// isExternalDestination reports whether a link destination should be left
// untouched: absolute URLs, protocol-relative URLs, bare fragments, mail
// links, and site-absolute paths.
func isExternalDestination(dest string) bool {
	return strings.Contains(dest, "://") ||
		strings.HasPrefix(dest, "//") ||
		strings.HasPrefix(dest, "#") ||
		strings.HasPrefix(dest, "mailto:") ||
		strings.HasPrefix(dest, "/")
}

// headingIDs implements parser.IDs on top of the slug package, deduplicating
// repeated titles with a numeric suffix the way rendered anchors expect.
type headingIDs struct {
	used map[string]bool
}

func newHeadingIDs() *headingIDs {
	return &headingIDs{used: make(map[string]bool)}
}

func (h *headingIDs) Generate(value []byte, _ gmast.NodeKind) []byte {
	id := slug.HeadingID(string(value))
	if id == "" {
		id = "section"
	}
	if !h.used[id] {
		h.used[id] = true
		return []byte(id)
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", id, i)
		if !h.used[candidate] {
			h.used[candidate] = true
			return []byte(candidate)
		}
	}
}

func (h *headingIDs) Put(value []byte) {
	h.used[string(value)] = true
}

// extractText collects the plain text of a parsed document in reading order.
// Code blocks carry their content as raw lines rather than text nodes, so
// listings stay out of the search excerpts on their own.
func extractText(doc gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if txt, ok := n.(*gmast.Text); ok {
			b.Write(txt.Segment.Value(source))
			b.WriteByte(' ')
		}
		return gmast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// rootPrefix returns the ../ chain that resolves the site root from a page at
// relPath.
func rootPrefix(relPath string) string {
	return strings.Repeat("../", strings.Count(relPath, "/"))
}

func editURL(template, source string) string {
	if template == "" {
		return ""
	}
	return strings.ReplaceAll(template, "{path}", source)
}
