package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"path"

	"git.home.luguber.info/inful/bookship/internal/book"
)

//go:embed assets/layout.html
var layoutSource string

//go:embed assets/book.css
var defaultCSS []byte

var layoutTpl = template.Must(template.New("layout").Parse(layoutSource))

// pageData is the layout template's input.
type pageData struct {
	BookTitle    string
	Title        string
	Description  string
	Language     string
	DefaultTheme string
	PathToRoot   string
	Stylesheets  []string
	Content      template.HTML
	Toc          []tocEntry
	Prev         *navLink
	Next         *navLink
	EditURL      string
	RepoURL      string
}

// tocEntry is one sidebar row. Draft chapters have no Href and render as
// inert text.
type tocEntry struct {
	Title  string
	Number string
	Href   string
	Depth  int
	Active bool
}

type navLink struct {
	Title string
	Href  string
}

func (d *pageData) setContent(body []byte) {
	// #nosec G203 -- body is our own rendered Markdown, raw HTML passthrough
	// is the book dialect.
	d.Content = template.HTML(body)
}

func executeLayout(data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := layoutTpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render page layout: %w", err)
	}
	return buf.Bytes(), nil
}

// tocEntries flattens the summary into sidebar rows. chapters[idx] is marked
// active; idx -1 marks nothing.
func tocEntries(b *book.Book, chapters []*book.Chapter, idx int) []tocEntry {
	var active *book.Chapter
	if idx >= 0 && idx < len(chapters) {
		active = chapters[idx]
	}

	all := b.Summary.All()
	entries := make([]tocEntry, 0, len(all))
	for _, ch := range all {
		entry := tocEntry{
			Title:  ch.Title,
			Number: ch.Number,
			Depth:  ch.Depth,
			Active: ch == active,
		}
		if !ch.Draft && ch.Source != "" {
			entry.Href = ch.Path
		}
		entries = append(entries, entry)
	}
	return entries
}

// stylesheets lists the CSS files every page links, in load order: the
// built-in sheet first, then any additional-css entries from book.toml.
func stylesheets(b *book.Book) []string {
	sheets := []string{"book.css"}
	for _, css := range b.Config.Output.HTML.AdditionalCSS {
		sheets = append(sheets, path.Clean(css))
	}
	return sheets
}
