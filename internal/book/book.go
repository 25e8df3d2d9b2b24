// Package book loads the book model: the book.toml manifest, the SUMMARY.md
// structure, and the chapter contents with their fingerprints.
package book

import (
	"path"
	"strings"
)

// Chapter is one entry of the summary. Numbered chapters carry a
// hierarchical section number ("1.", "1.2."); prefix and suffix chapters do
// not. Draft chapters have no source file and produce no page.
type Chapter struct {
	Title       string
	Source      string // path relative to the src dir, slash-separated
	Path        string // rendered output path, slash-separated
	Number      string // "1.", "1.2.", empty for prefix/suffix chapters
	Depth       int    // nesting level, 0 for top-level
	SubChapters []*Chapter
	Draft       bool

	// Loaded content (body after frontmatter) and its fingerprint.
	Content     []byte
	Fingerprint string
}

// Summary is the parsed SUMMARY.md: prefix chapters, the numbered section,
// and suffix chapters.
type Summary struct {
	Title    string
	Prefix   []*Chapter
	Numbered []*Chapter
	Suffix   []*Chapter
}

// All returns every chapter in reading order, depth-first.
func (s *Summary) All() []*Chapter {
	var out []*Chapter
	var walk func(chs []*Chapter)
	walk = func(chs []*Chapter) {
		for _, ch := range chs {
			out = append(out, ch)
			walk(ch.SubChapters)
		}
	}
	walk(s.Prefix)
	walk(s.Numbered)
	walk(s.Suffix)
	return out
}

// Book is the fully loaded model a build renders from.
type Book struct {
	Config  BookFile
	Dir     string // book directory (holds book.toml)
	SrcDir  string // source directory (holds SUMMARY.md)
	Summary *Summary

	// Fingerprint combines the summary and all chapter fingerprints.
	// Identical book content yields an identical fingerprint regardless of
	// where the book directory lives.
	Fingerprint string
}

// Chapters returns the renderable chapters (non-draft, with a source file)
// in reading order.
func (b *Book) Chapters() []*Chapter {
	var out []*Chapter
	for _, ch := range b.Summary.All() {
		if ch.Draft || ch.Source == "" {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// Title returns the configured book title.
func (b *Book) Title() string { return b.Config.Book.Title }

// OutputPath maps a chapter source path to its rendered location:
// README.md becomes the directory index, everything else swaps .md for
// .html.
func OutputPath(source string) string {
	dir, file := path.Split(source)
	if strings.EqualFold(file, "README.md") {
		return dir + "index.html"
	}
	if strings.HasSuffix(file, ".md") {
		file = strings.TrimSuffix(file, ".md") + ".html"
	}
	return dir + file
}
