package render

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bookship/internal/book"
)

// writeAssets writes the non-page files of the site: the built-in
// stylesheet, theme overrides, additional-css entries, and the publishing
// markers from book.toml. Theme files land after the default stylesheet so a
// theme book.css wins.
func writeAssets(b *book.Book, outDir string) (int, error) {
	count := 0

	if err := writeOutputFile(outDir, "book.css", defaultCSS); err != nil {
		return count, err
	}
	count++

	if theme := b.Config.Output.HTML.Theme; theme != "" {
		n, err := copyThemeDir(b.Dir, theme, outDir)
		if err != nil {
			return count, err
		}
		count += n
	}

	for _, css := range b.Config.Output.HTML.AdditionalCSS {
		rel := path.Clean(css)
		if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
			return count, fmt.Errorf("additional-css %s escapes the book directory", css)
		}
		data, err := os.ReadFile(filepath.Join(b.Dir, filepath.FromSlash(rel))) // #nosec G304 -- confined to the book dir
		if err != nil {
			return count, fmt.Errorf("additional-css %s: %w", css, err)
		}
		if err := writeOutputFile(outDir, rel, data); err != nil {
			return count, err
		}
		count++
	}

	if b.Config.Output.HTML.NoJekyll {
		if err := writeOutputFile(outDir, ".nojekyll", nil); err != nil {
			return count, err
		}
		count++
	}
	if cname := b.Config.Output.HTML.CNAME; cname != "" {
		if err := writeOutputFile(outDir, "CNAME", []byte(cname+"\n")); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// copyThemeDir copies every file of the configured theme directory into the
// output root, preserving subpaths.
func copyThemeDir(bookDir, theme, outDir string) (int, error) {
	rel := path.Clean(theme)
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return 0, fmt.Errorf("theme directory %s escapes the book directory", theme)
	}
	themeDir := filepath.Join(bookDir, filepath.FromSlash(rel))
	if info, err := os.Stat(themeDir); err != nil || !info.IsDir() {
		return 0, fmt.Errorf("theme directory %s not found under %s", theme, bookDir)
	}

	count := 0
	err := filepath.WalkDir(themeDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		fileRel, err := filepath.Rel(themeDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p) // #nosec G304 -- walking the theme dir
		if err != nil {
			return fmt.Errorf("read theme file %s: %w", fileRel, err)
		}
		if err := writeOutputFile(outDir, filepath.ToSlash(fileRel), data); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// copyStaticFiles mirrors everything except Markdown sources from the source
// directory into the output, so images and other files referenced by
// chapters resolve at their original relative paths. Dot files and dot
// directories are skipped.
func copyStaticFiles(srcDir, outDir string) (int, error) {
	count := 0
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if d.IsDir() {
			if p != srcDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p) // #nosec G304 -- walking the book source tree
		if err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		if err := writeOutputFile(outDir, filepath.ToSlash(rel), data); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
