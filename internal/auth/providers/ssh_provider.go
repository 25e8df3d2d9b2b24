package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/bookship/internal/config"
)

// SSHProvider handles SSH key authentication.
type SSHProvider struct{}

// NewSSHProvider creates a new SSH authentication provider.
func NewSSHProvider() *SSHProvider {
	return &SSHProvider{}
}

// Type returns the authentication type this provider handles.
func (p *SSHProvider) Type() config.AuthType {
	return config.AuthTypeSSH
}

// CreateAuth creates SSH authentication from the configuration. Key material
// from key_env takes precedence over a key file path.
func (p *SSHProvider) CreateAuth(authConfig *config.AuthConfig) (transport.AuthMethod, error) {
	if authConfig.KeyEnv != "" {
		material := os.Getenv(authConfig.KeyEnv)
		if material == "" {
			return nil, fmt.Errorf("environment variable %s is empty", authConfig.KeyEnv)
		}
		publicKeys, err := ssh.NewPublicKeys("git", []byte(material), "")
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key from %s: %w", authConfig.KeyEnv, err)
		}
		return publicKeys, nil
	}

	keyPath := defaultKeyPath(authConfig.KeyPath)
	publicKeys, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
	}

	return publicKeys, nil
}

// ValidateConfig validates the SSH authentication configuration.
func (p *SSHProvider) ValidateConfig(authConfig *config.AuthConfig) error {
	if authConfig.KeyEnv != "" {
		if os.Getenv(authConfig.KeyEnv) == "" {
			return fmt.Errorf("environment variable %s is empty", authConfig.KeyEnv)
		}
		return nil
	}

	keyPath := defaultKeyPath(authConfig.KeyPath)
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return fmt.Errorf("SSH key file does not exist: %s", keyPath)
	}

	return nil
}

// Name returns a human-readable name for this provider.
func (p *SSHProvider) Name() string {
	return "SSHProvider"
}

// defaultKeyPath expands an empty or ~-prefixed key path. With no path
// configured the conventional key files are probed in order.
func defaultKeyPath(keyPath string) string {
	home, _ := os.UserHomeDir()
	if keyPath == "" {
		for _, candidate := range []string{"id_ed25519", "id_rsa"} {
			p := filepath.Join(home, ".ssh", candidate)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		return filepath.Join(home, ".ssh", "id_ed25519")
	}
	if len(keyPath) > 1 && keyPath[0] == '~' && keyPath[1] == '/' {
		return filepath.Join(home, keyPath[2:])
	}
	return keyPath
}
