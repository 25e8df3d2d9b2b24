package git

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ComputeBookHash computes a deterministic digest of the book directory tree
// at the given commit. The digest covers file paths and blob hashes but not
// the commit itself: two commits with identical book content hash the same.
// This is what lets a run skip rebuilding when a push only touched files
// outside the book directory.
func ComputeBookHash(repoPath, commit, dir string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return "", fmt.Errorf("resolve commit %s: %w", commit, err)
	}
	commitObj, err := repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("get commit object: %w", err)
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return "", fmt.Errorf("get tree: %w", err)
	}

	if dir != "" && dir != "." {
		subtree, terr := tree.Tree(dir)
		if terr != nil {
			return "", fmt.Errorf("book dir %s not in commit %s: %w", dir, commit, terr)
		}
		tree = subtree
	}

	// File names are relative to the book dir, so moving the book wholesale
	// to another directory still hashes the same.
	var entries []string
	err = tree.Files().ForEach(func(f *object.File) error {
		entries = append(entries, f.Name+":"+f.Hash.String())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk tree: %w", err)
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
