package book

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// BookFile is the book.toml manifest.
type BookFile struct {
	Book   BookMeta    `toml:"book"`
	Build  BuildOpts   `toml:"build"`
	Output OutputsOpts `toml:"output"`
}

// BookMeta describes the book itself.
type BookMeta struct {
	Title       string   `toml:"title"`
	Authors     []string `toml:"authors"`
	Description string   `toml:"description"`
	Language    string   `toml:"language"`
	Src         string   `toml:"src"`
}

// BuildOpts controls build behavior.
type BuildOpts struct {
	// CreateMissing writes an empty stub for chapters listed in SUMMARY.md
	// that have no file yet instead of failing the build.
	CreateMissing bool `toml:"create-missing"`
}

// OutputsOpts groups per-output configuration. Only the HTML output exists.
type OutputsOpts struct {
	HTML HTMLOpts `toml:"html"`
}

// HTMLOpts configures the HTML renderer.
type HTMLOpts struct {
	Theme            string   `toml:"theme"`
	DefaultTheme     string   `toml:"default-theme"`
	GitRepositoryURL string   `toml:"git-repository-url"`
	EditURLTemplate  string   `toml:"edit-url-template"`
	CNAME            string   `toml:"cname"`
	NoJekyll         bool     `toml:"no-jekyll"`
	AdditionalCSS    []string `toml:"additional-css"`
}

// LoadBookFile reads book.toml from the given book directory. A missing
// manifest is not an error: defaults apply with the directory name as title.
func LoadBookFile(dir string) (BookFile, error) {
	var bf BookFile
	manifestPath := filepath.Join(dir, "book.toml")
	data, err := os.ReadFile(manifestPath) // #nosec G304 - resolved book dir
	switch {
	case os.IsNotExist(err):
		// fall through to defaults
	case err != nil:
		return bf, fmt.Errorf("read %s: %w", manifestPath, err)
	default:
		if err := toml.Unmarshal(data, &bf); err != nil {
			return bf, fmt.Errorf("parse %s: %w", manifestPath, err)
		}
	}
	applyBookDefaults(&bf, dir)
	return bf, nil
}

func applyBookDefaults(bf *BookFile, dir string) {
	if bf.Book.Title == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			bf.Book.Title = filepath.Base(abs)
		} else {
			bf.Book.Title = filepath.Base(dir)
		}
	}
	if bf.Book.Language == "" {
		bf.Book.Language = "en"
	}
	if bf.Book.Src == "" {
		bf.Book.Src = "src"
	}
	if bf.Output.HTML.DefaultTheme == "" {
		bf.Output.HTML.DefaultTheme = "light"
	}
}

// LocateBookDir resolves the book directory under root. An explicitly
// configured dir must exist; otherwise the conventional "book" subdirectory
// is probed, then root itself. A directory qualifies when it holds book.toml
// or src/SUMMARY.md.
func LocateBookDir(root, configured string) (string, error) {
	if configured != "" && configured != "." {
		dir := filepath.FromSlash(configured)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", fmt.Errorf("configured book dir %s not found under %s", configured, root)
		}
		return dir, nil
	}
	for _, candidate := range []string{filepath.Join(root, "book"), root} {
		if isBookDir(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no book found under %s (expected book.toml or src/SUMMARY.md)", root)
}

func isBookDir(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "book.toml")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "src", "SUMMARY.md")); err == nil {
		return true
	}
	return false
}
