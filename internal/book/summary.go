package book

import (
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type summaryPhase int

const (
	phasePrefix summaryPhase = iota
	phaseNumbered
	phaseSuffix
)

// ParseSummary parses SUMMARY.md into the book structure using goldmark's
// AST. Top-level links before the first list are prefix chapters, list items
// are numbered chapters (nesting sets depth and section numbers), a
// separator after the numbered section switches to suffix chapters.
// Plain-text items and links with an empty destination are draft chapters.
func ParseSummary(source []byte) (*Summary, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(source))

	s := &Summary{}
	phase := phasePrefix
	counter := 0 // top-level section counter, continues across lists

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *gmast.Heading:
			if s.Title == "" && phase == phasePrefix && len(s.Prefix) == 0 {
				s.Title = nodeText(n, source)
			}
			// later headings are part markers; numbering continues
		case *gmast.ThematicBreak:
			if phase == phaseNumbered {
				phase = phaseSuffix
			}
		case *gmast.List:
			if phase == phaseSuffix {
				return nil, fmt.Errorf("numbered chapters cannot follow the closing separator")
			}
			phase = phaseNumbered
			chapters, err := parseList(n, source, "", 0, &counter)
			if err != nil {
				return nil, err
			}
			s.Numbered = append(s.Numbered, chapters...)
		case *gmast.Paragraph:
			ch, err := parseBareChapter(n, source)
			if err != nil {
				return nil, err
			}
			if ch == nil {
				continue
			}
			if phase == phasePrefix {
				s.Prefix = append(s.Prefix, ch)
			} else {
				phase = phaseSuffix
				s.Suffix = append(s.Suffix, ch)
			}
		}
	}

	if len(s.Prefix)+len(s.Numbered)+len(s.Suffix) == 0 {
		return nil, fmt.Errorf("summary contains no chapters")
	}
	return s, nil
}

// parseList converts a markdown list into numbered chapters. The counter is
// shared by the caller so numbering continues across sibling lists.
func parseList(list *gmast.List, source []byte, numberPrefix string, depth int, counter *int) ([]*Chapter, error) {
	var chapters []*Chapter
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		li, ok := item.(*gmast.ListItem)
		if !ok {
			continue
		}
		*counter++
		ch := &Chapter{Number: fmt.Sprintf("%s%d.", numberPrefix, *counter), Depth: depth}

		for block := li.FirstChild(); block != nil; block = block.NextSibling() {
			switch b := block.(type) {
			case *gmast.TextBlock, *gmast.Paragraph:
				if ch.Title == "" && !ch.Draft {
					if err := fillChapterFromBlock(ch, b, source); err != nil {
						return nil, err
					}
				}
			case *gmast.List:
				sub := 0
				subChapters, err := parseList(b, source, ch.Number, depth+1, &sub)
				if err != nil {
					return nil, err
				}
				ch.SubChapters = append(ch.SubChapters, subChapters...)
			}
		}

		if ch.Title == "" {
			return nil, fmt.Errorf("summary item %s has no title", ch.Number)
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

// parseBareChapter turns a top-level paragraph link into an unnumbered
// (prefix/suffix) chapter. Paragraphs without a link are ignored.
func parseBareChapter(para *gmast.Paragraph, source []byte) (*Chapter, error) {
	if firstLink(para) == nil {
		return nil, nil
	}
	ch := &Chapter{}
	if err := fillChapterFromBlock(ch, para, source); err != nil {
		return nil, err
	}
	return ch, nil
}

// fillChapterFromBlock extracts title and source from the block holding the
// summary entry. No link means a draft chapter titled by the plain text.
func fillChapterFromBlock(ch *Chapter, block gmast.Node, source []byte) error {
	link := firstLink(block)
	if link == nil {
		ch.Title = nodeText(block, source)
		ch.Draft = true
		return nil
	}
	ch.Title = nodeText(link, source)
	dest := strings.TrimSpace(string(link.Destination))
	if dest == "" {
		ch.Draft = true
		return nil
	}
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "//") {
		return fmt.Errorf("summary links must point at book files, got %q for %q", dest, ch.Title)
	}
	cleaned := path.Clean(strings.TrimPrefix(dest, "./"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("summary link %q for %q escapes the source directory", dest, ch.Title)
	}
	ch.Source = cleaned
	return nil
}

func firstLink(block gmast.Node) *gmast.Link {
	var link *gmast.Link
	_ = gmast.Walk(block, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if l, ok := n.(*gmast.Link); ok && link == nil {
			link = l
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return link
}

// nodeText collects the plain text under a node.
func nodeText(node gmast.Node, source []byte) string {
	var sb strings.Builder
	_ = gmast.Walk(node, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if t, ok := n.(*gmast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
