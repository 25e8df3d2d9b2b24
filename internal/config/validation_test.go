package config

import (
	"strings"
	"testing"
)

// validBase returns a config that passes validation; tests mutate one field.
func validBase() Config {
	return Config{
		Pipeline: PipelineConfig{Name: "docs", Ref: "refs/heads/master"},
		Source: SourceConfig{
			URL:               "git@example.com:org/project.git",
			Branch:            "master",
			Dir:               "book",
			MaxRetries:        2,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "30s",
		},
		Output:  OutputConfig{Directory: "./site", Clean: true},
		Publish: PublishConfig{Repository: "git@example.com:org/site.git", Branch: "main"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validBase()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("unexpected error for valid config: %v", err)
	}
}

func TestValidate_UnqualifiedRef(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.Ref = "master"
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for unqualified ref")
	}
}

func TestValidate_PipelineNameWithSlash(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.Name = "docs/main"
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for pipeline name with slash")
	}
}

func TestValidate_EmptyPublishBranch(t *testing.T) {
	cfg := validBase()
	cfg.Publish.Branch = ""
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for empty publish branch")
	}
}

func TestValidate_NoPublishTargetIsFine(t *testing.T) {
	cfg := validBase()
	cfg.Publish = PublishConfig{}
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("build-only config should validate: %v", err)
	}
}

func TestValidate_KeepPathsRejectsTraversal(t *testing.T) {
	cfg := validBase()
	cfg.Publish.KeepPaths = []string{"../outside"}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for traversal in keep_paths")
	}
}

func TestValidate_RetryDelays(t *testing.T) {
	cfg := validBase()
	cfg.Source.RetryInitialDelay = "10s"
	cfg.Source.RetryMaxDelay = "1s"
	err := validateConfig(&cfg)
	if err == nil {
		t.Fatal("expected error when max delay below initial delay")
	}
	if !strings.Contains(err.Error(), "retry_max_delay") {
		t.Errorf("unexpected error message: %v", err)
	}

	cfg = validBase()
	cfg.Source.RetryInitialDelay = "not-a-duration"
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for malformed initial delay")
	}
}

func TestValidate_RetryBackoffMode(t *testing.T) {
	cfg := validBase()
	cfg.Source.RetryBackoff = "quadratic"
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for unknown backoff mode")
	}
}

func TestValidate_SSHAuthNeedsKey(t *testing.T) {
	cfg := validBase()
	cfg.Source.Auth = &AuthConfig{Type: AuthTypeSSH}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for ssh auth without key")
	}

	cfg.Source.Auth = &AuthConfig{Type: AuthTypeSSH, KeyEnv: "BOOKSHIP_SSH_KEY"}
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("key_env should satisfy ssh auth: %v", err)
	}
}

func TestValidate_TokenAuthNeedsToken(t *testing.T) {
	cfg := validBase()
	cfg.Source.Auth = &AuthConfig{Type: AuthTypeToken}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for token auth without token")
	}
}

func TestValidate_DaemonPortClash(t *testing.T) {
	cfg := validBase()
	cfg.Daemon = &DaemonConfig{
		DataDir:     "./data",
		HTTP:        HTTPConfig{WebhookPort: 9000, AdminPort: 9000},
		QueueSize:   16,
		Workers:     2,
		QuietWindow: "2s",
		MaxDelay:    "30s",
	}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for identical daemon ports")
	}
}

func TestValidate_DaemonScheduleTooShort(t *testing.T) {
	cfg := validBase()
	cfg.Daemon = &DaemonConfig{
		DataDir:     "./data",
		HTTP:        HTTPConfig{WebhookPort: 9001, AdminPort: 9002},
		Schedule:    "5s",
		QueueSize:   16,
		Workers:     2,
		QuietWindow: "2s",
		MaxDelay:    "30s",
	}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for sub-minute schedule")
	}
}

func TestValidate_DebounceRelationship(t *testing.T) {
	cfg := validBase()
	cfg.Daemon = &DaemonConfig{
		DataDir:     "./data",
		HTTP:        HTTPConfig{WebhookPort: 9001, AdminPort: 9002},
		QueueSize:   16,
		Workers:     2,
		QuietWindow: "30s",
		MaxDelay:    "2s",
	}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error when max_delay below quiet_window")
	}
}

func TestValidate_NotifyGitHubIncomplete(t *testing.T) {
	cfg := validBase()
	cfg.Notify.GitHub = &GitHubNotifyConfig{Owner: "org"}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for github notify without repo")
	}

	cfg.Notify.GitHub = &GitHubNotifyConfig{Owner: "org", Repo: "project"}
	if err := validateConfig(&cfg); err == nil {
		t.Fatal("expected error for github notify without credentials")
	}

	cfg.Notify.GitHub = &GitHubNotifyConfig{Owner: "org", Repo: "project", Token: "tok"}
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("token credentials should validate: %v", err)
	}
}
