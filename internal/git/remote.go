package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// ResolveRemoteHead performs a lightweight ls-remote against url and returns
// the commit hash of refs/heads/<branch>, without a local clone. An empty
// hash with nil error means the branch does not exist yet, which is the
// normal state of a fresh target repository before the first publish.
func ResolveRemoteHead(url, branch string, authMethod transport.AuthMethod) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	listOpts := &git.ListOptions{}
	if authMethod != nil {
		listOpts.Auth = authMethod
	}
	refs, err := remote.List(listOpts)
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return "", nil
		}
		return "", fmt.Errorf("list remote refs for %s: %w", url, err)
	}

	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", nil
}
