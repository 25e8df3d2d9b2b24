package auth

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/bookship/internal/config"
)

func TestManager_CreateAuth(t *testing.T) {
	manager := NewManager()

	tests := []struct {
		name        string
		authConfig  *config.AuthConfig
		expectNil   bool
		expectError bool
	}{
		{
			name:       "nil config",
			authConfig: nil,
			expectNil:  true,
		},
		{
			name:       "none auth",
			authConfig: &config.AuthConfig{Type: config.AuthTypeNone},
			expectNil:  true,
		},
		{
			name:       "token auth - valid",
			authConfig: &config.AuthConfig{Type: config.AuthTypeToken, Token: "test-token"},
		},
		{
			name:        "token auth - missing token",
			authConfig:  &config.AuthConfig{Type: config.AuthTypeToken},
			expectNil:   true,
			expectError: true,
		},
		{
			name:       "basic auth - valid",
			authConfig: &config.AuthConfig{Type: config.AuthTypeBasic, Username: "testuser", Password: "testpass"},
		},
		{
			name:        "basic auth - missing username",
			authConfig:  &config.AuthConfig{Type: config.AuthTypeBasic, Password: "testpass"},
			expectNil:   true,
			expectError: true,
		},
		{
			name:        "unknown auth type",
			authConfig:  &config.AuthConfig{Type: "kerberos"},
			expectNil:   true,
			expectError: true,
		},
		{
			name:        "ssh auth - missing key",
			authConfig:  &config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: "/nonexistent/key"},
			expectNil:   true,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := manager.CreateAuth(tt.authConfig)

			if tt.expectError && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expectNil && auth != nil {
				t.Fatalf("expected nil auth, got %T", auth)
			}
			if !tt.expectNil && !tt.expectError && auth == nil {
				t.Fatal("expected auth method, got nil")
			}
		})
	}
}

func TestManager_CreateAuth_TokenUsesBasicTransport(t *testing.T) {
	auth, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeToken, Token: "abc123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	basic, ok := auth.(*http.BasicAuth)
	if !ok {
		t.Fatalf("expected *http.BasicAuth, got %T", auth)
	}
	if basic.Username != "token" || basic.Password != "abc123" {
		t.Errorf("unexpected credentials: %s/%s", basic.Username, basic.Password)
	}
}

func TestManager_CreateAuth_SSHFromEnv(t *testing.T) {
	// Deliberately invalid key material: parsing must fail, proving the env
	// var was consulted.
	t.Setenv("BOOKSHIP_TEST_SSH_KEY", "not a pem key")

	_, err := CreateAuth(&config.AuthConfig{Type: config.AuthTypeSSH, KeyEnv: "BOOKSHIP_TEST_SSH_KEY"})
	if err == nil {
		t.Fatal("expected parse error for invalid key material")
	}
}
