package publish

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"

	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// reportDryRun logs the change set a real publish would have committed.
// Modified text files are shown as unified diffs against the target branch.
func (p *Publisher) reportDryRun(repo *git.Repository, scratch string, status git.Status, branchExisted bool) {
	slog.Info("Dry-run, nothing will be pushed", logfields.Branch(p.branch()))

	var baseline *object.Tree
	if branchExisted {
		tree, err := headTree(repo)
		if err != nil {
			slog.Debug("No baseline tree for dry-run diffs", logfields.Error(err))
		}
		baseline = tree
	}

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		switch status[path].Staging {
		case git.Added:
			slog.Info("Would add", logfields.Path(path))
		case git.Deleted:
			slog.Info("Would delete", logfields.Path(path))
		case git.Modified:
			if diff := fileDiff(baseline, scratch, path); diff != "" {
				slog.Info("Would update", logfields.Path(path), slog.String("diff", diff))
			} else {
				slog.Info("Would update", logfields.Path(path))
			}
		}
	}
}

func headTree(repo *git.Repository) (*object.Tree, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}

// fileDiff renders a unified diff for one modified path. Binary content and
// read failures degrade to an empty diff; the modification is still listed.
func fileDiff(baseline *object.Tree, scratch, path string) string {
	if baseline == nil {
		return ""
	}
	old, err := baseline.File(path)
	if err != nil {
		return ""
	}
	if bin, err := old.IsBinary(); err != nil || bin {
		return ""
	}
	oldContent, err := old.Contents()
	if err != nil {
		return ""
	}
	newContent, err := os.ReadFile(filepath.Join(scratch, filepath.FromSlash(path)))
	if err != nil || bytes.IndexByte(newContent, 0) >= 0 {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(string(newContent)),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return strings.TrimRight(text, "\n")
}
