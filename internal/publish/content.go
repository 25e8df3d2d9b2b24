package publish

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// replaceContent makes the scratch worktree hold exactly the rendered site.
// Top-level entries named in keep survive (.git always does); everything
// else is removed before the site is copied in.
func replaceContent(scratch, siteDir string, keep []string) error {
	if err := clearWorktree(scratch, keep); err != nil {
		return err
	}
	return copyTree(siteDir, scratch)
}

func clearWorktree(scratch string, keep []string) error {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return fmt.Errorf("publish: read target worktree: %w", err)
	}
	for _, entry := range entries {
		if slices.Contains(keep, entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(scratch, entry.Name())); err != nil {
			return fmt.Errorf("publish: clear %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func copyTree(siteDir, scratch string) error {
	return filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(siteDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := filepath.Join(scratch, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o750)
		}
		data, err := os.ReadFile(p) // #nosec G304 -- walking the rendered output
		if err != nil {
			return fmt.Errorf("publish: read %s: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("publish: create %s: %w", filepath.Dir(rel), err)
		}
		// #nosec G306 -- published site files are public
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("publish: copy %s: %w", rel, err)
		}
		return nil
	})
}
