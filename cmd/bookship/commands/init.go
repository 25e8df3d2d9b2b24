package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/bookship/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool   `help:"Overwrite existing files"`
	Book  bool   `help:"Also create a starter book skeleton"`
	Dir   string `short:"d" default:"." help:"Directory to initialize"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	cfgPath := root.Config
	if i.Dir != "." {
		cfgPath = filepath.Join(i.Dir, filepath.Base(root.Config))
	}

	fmt.Println("Initializing bookship project")
	fmt.Printf("Writing configuration to %s\n", cfgPath)
	if err := config.Init(cfgPath, i.Force); err != nil {
		return err
	}
	if i.Book {
		if err := writeBookSkeleton(i.Dir, i.Force); err != nil {
			return err
		}
	}
	fmt.Println("initialized successfully")
	return nil
}

type skeletonFile struct {
	rel     string
	content string
}

var bookSkeleton = []skeletonFile{
	{"book.toml", "[book]\ntitle = \"My Book\"\nauthors = []\n"},
	{"src/SUMMARY.md", "# Summary\n\n[Introduction](introduction.md)\n"},
	{"src/introduction.md", "# Introduction\n\nWrite your book here.\n"},
}

// writeBookSkeleton lays down a minimal buildable book. Existing files are
// kept unless force is set.
func writeBookSkeleton(dir string, force bool) error {
	for _, f := range bookSkeleton {
		path := filepath.Join(dir, filepath.FromSlash(f.rel))
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Printf("Keeping existing %s\n", f.rel)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", f.rel, err)
		}
		fmt.Printf("Created %s\n", f.rel)
	}
	return nil
}
