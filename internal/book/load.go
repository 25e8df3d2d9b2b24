package book

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/bookship/internal/frontmatter"
	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// Load reads the full book model from a book directory: manifest, summary,
// and every referenced chapter.
func Load(dir string) (*Book, error) {
	cfg, err := LoadBookFile(dir)
	if err != nil {
		return nil, err
	}

	srcDir := filepath.Join(dir, filepath.FromSlash(cfg.Book.Src))
	summaryPath := filepath.Join(srcDir, "SUMMARY.md")
	raw, err := os.ReadFile(summaryPath) // #nosec G304 - resolved book dir
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", summaryPath, err)
	}
	summary, err := ParseSummary(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", summaryPath, err)
	}

	b := &Book{Config: cfg, Dir: dir, SrcDir: srcDir, Summary: summary}

	// The book fingerprint covers the summary plus every loaded chapter,
	// draft or not: flipping a draft flag must change it.
	parts := []string{"SUMMARY.md:" + mdfp.CalculateFingerprintFromParts("", string(raw))}
	for _, ch := range summary.All() {
		if ch.Draft || ch.Source == "" {
			continue
		}
		if err := loadChapter(srcDir, ch, cfg.Build.CreateMissing); err != nil {
			return nil, err
		}
		parts = append(parts, ch.Source+":"+ch.Fingerprint)
		if ch.Draft {
			continue
		}
		ch.Path = OutputPath(ch.Source)
	}
	b.Fingerprint = mdfp.CalculateFingerprintFromParts("", strings.Join(parts, "\n"))

	slog.Debug("Book loaded", slog.String("title", b.Title()), logfields.Count(len(b.Chapters())), logfields.Dir(dir))
	return b, nil
}

// loadChapter reads a chapter file, honors its frontmatter, and computes the
// content fingerprint.
func loadChapter(srcDir string, ch *Chapter, createMissing bool) error {
	full := filepath.Join(srcDir, filepath.FromSlash(ch.Source))
	content, err := os.ReadFile(full) // #nosec G304 - path from SUMMARY.md under src dir
	if os.IsNotExist(err) && createMissing {
		stub := []byte("# " + ch.Title + "\n")
		if mkErr := os.MkdirAll(filepath.Dir(full), 0o750); mkErr != nil {
			return fmt.Errorf("create chapter dir for %s: %w", ch.Source, mkErr)
		}
		if writeErr := os.WriteFile(full, stub, 0o600); writeErr != nil {
			return fmt.Errorf("create missing chapter %s: %w", ch.Source, writeErr)
		}
		slog.Info("Created missing chapter", logfields.Chapter(ch.Title), logfields.Path(full))
		content, err = stub, nil
	}
	if err != nil {
		return fmt.Errorf("chapter %q: read %s: %w", ch.Title, ch.Source, err)
	}

	fmRaw, body, had, _, err := frontmatter.Split(content)
	if err != nil {
		return fmt.Errorf("chapter %q: %s: %w", ch.Title, ch.Source, err)
	}
	if had {
		meta, metaErr := frontmatter.ParseMeta(fmRaw)
		if metaErr != nil {
			return fmt.Errorf("chapter %q: %s: %w", ch.Title, ch.Source, metaErr)
		}
		if meta.Title != "" {
			ch.Title = meta.Title
		}
		if meta.Draft {
			ch.Draft = true
		}
	}
	ch.Content = body
	ch.Fingerprint = mdfp.CalculateFingerprintFromParts(string(fmRaw), string(body))
	return nil
}
