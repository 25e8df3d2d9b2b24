package integration

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// seedSourceRepo creates a git repository holding the given files and commits
// them on master, the way a forge-hosted book source looks.
func seedSourceRepo(t *testing.T, files map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for rel := range files {
		_, err = wt.Add(filepath.FromSlash(rel))
		require.NoError(t, err)
	}
	hash := commitAll(t, wt, "seed book")
	return dir, hash
}

// commitChange rewrites one file in the source repository and commits it.
func commitChange(t *testing.T, repoDir, rel, content string) string {
	t.Helper()
	repo, err := git.PlainOpen(repoDir)
	require.NoError(t, err)
	full := filepath.Join(repoDir, filepath.FromSlash(rel))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(filepath.FromSlash(rel))
	require.NoError(t, err)
	return commitAll(t, wt, "update "+rel)
}

func commitAll(t *testing.T, wt *git.Worktree, message string) string {
	t.Helper()
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "author", Email: "author@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func bareTarget(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "target.git")
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

// clonePublished checks out the published branch of the hosting repository.
func clonePublished(t *testing.T, bare, branch string) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           bare,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	return dir
}

// manifest lists every published file as a sorted slash path, .git excluded.
func manifest(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func readPublished(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// writeConfigFile renders a pipeline configuration with the given
// placeholders substituted and writes it next to the data directory.
func writeConfigFile(t *testing.T, dir, content string, subst map[string]string) string {
	t.Helper()
	for key, val := range subst {
		content = strings.ReplaceAll(content, key, val)
	}
	path := filepath.Join(dir, "bookship.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
