// Package deploykey loads and validates the SSH key used for pushing the
// published site to the target repository. The key is separate from source
// checkout auth on purpose: a deploy key is scoped to one repository and
// carries write access, so it never doubles as the read credential.
package deploykey

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"git.home.luguber.info/inful/bookship/internal/config"
)

// Key is a parsed deploy key ready to authenticate pushes.
type Key struct {
	Source      string // where the material came from, for logs
	Fingerprint string // SHA256 fingerprint of the public half
	signer      ssh.Signer
}

// Load resolves the deploy key for the given publish configuration. Material
// from deploy_key_env takes precedence over deploy_key_path.
func Load(cfg config.PublishConfig) (*Key, error) {
	if cfg.DeployKeyEnv != "" {
		material := os.Getenv(cfg.DeployKeyEnv)
		if material == "" {
			return nil, fmt.Errorf("environment variable %s is empty", cfg.DeployKeyEnv)
		}
		return Parse([]byte(material), "env:"+cfg.DeployKeyEnv)
	}
	if cfg.DeployKeyPath == "" {
		return nil, errors.New("publish.deploy_key_path or publish.deploy_key_env must be set")
	}
	path := expandHome(cfg.DeployKeyPath)
	material, err := os.ReadFile(path) // #nosec G304 - operator-configured key path
	if err != nil {
		return nil, fmt.Errorf("read deploy key %s: %w", path, err)
	}
	return Parse(material, path)
}

// Parse parses private key material into a usable deploy key. Encrypted keys
// are rejected: deploy keys are expected to be dedicated, passphrase-free
// keys scoped to the target repository.
func Parse(material []byte, source string) (*Key, error) {
	signer, err := ssh.ParsePrivateKey(material)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("deploy key %s is passphrase protected, use a dedicated passphrase-free key", source)
		}
		return nil, fmt.Errorf("parse deploy key %s: %w", source, err)
	}
	return &Key{
		Source:      source,
		Fingerprint: ssh.FingerprintSHA256(signer.PublicKey()),
		signer:      signer,
	}, nil
}

// AuthMethod returns the go-git transport auth performing pushes with this
// key.
func (k *Key) AuthMethod() *gitssh.PublicKeys {
	return &gitssh.PublicKeys{User: "git", Signer: k.signer}
}

// AuthorizedKey returns the single-line public key in authorized_keys
// format, suitable for pasting into the hosting platform's deploy key
// settings.
func (k *Key) AuthorizedKey() string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(k.signer.PublicKey())))
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
