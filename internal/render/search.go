package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/bookship/internal/book"
)

// excerptLen caps the plain-text excerpt stored per chapter.
const excerptLen = 240

// SearchEntry is one chapter in searchindex.json.
type SearchEntry struct {
	Title   string `json:"title"`
	Href    string `json:"href"`
	Excerpt string `json:"excerpt"`
}

// searchIndex accumulates chapter entries during a render.
type searchIndex struct {
	entries []SearchEntry
}

func newSearchIndex() *searchIndex {
	return &searchIndex{entries: make([]SearchEntry, 0, 16)}
}

func (s *searchIndex) add(ch *book.Chapter, text string) {
	title := ch.Title
	if ch.Number != "" {
		title = ch.Number + " " + ch.Title
	}
	s.entries = append(s.entries, SearchEntry{
		Title:   title,
		Href:    ch.Path,
		Excerpt: excerpt(text),
	})
}

func (s *searchIndex) write(outDir string) error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode search index: %w", err)
	}
	return writeOutputFile(outDir, "searchindex.json", append(data, '\n'))
}

// excerpt cuts text at the cap on a rune boundary, backing up to the last
// word break so entries never end mid-word.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	cut := string(runes[:excerptLen])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
