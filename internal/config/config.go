package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Version  string         `yaml:"version,omitempty"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Source   SourceConfig   `yaml:"source,omitempty"`
	Output   OutputConfig   `yaml:"output,omitempty"`
	Publish  PublishConfig  `yaml:"publish,omitempty"`
	Notify   NotifyConfig   `yaml:"notify,omitempty"`
	Daemon   *DaemonConfig  `yaml:"daemon,omitempty"`
	Serve    ServeConfig    `yaml:"serve,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// Load loads a configuration file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate version
	if config.Version != "" && !strings.HasPrefix(config.Version, "1") {
		return nil, fmt.Errorf("unsupported configuration version: %s (expected 1.x)", config.Version)
	}

	// Apply defaults before validation so canonical values drive the checks
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied and no file
// loaded. The preview server uses it when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Version: "1.0",
		Pipeline: PipelineConfig{
			Name:          "docs",
			Ref:           "refs/heads/master",
			EngineVersion: "",
			LinkCheck:     LinkCheckConfig{Enabled: true},
		},
		Source: SourceConfig{
			URL:               "git@github.com:example/project.git",
			Branch:            "master",
			Dir:               "book",
			MaxRetries:        2,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "30s",
			Auth: &AuthConfig{
				Type:    AuthTypeSSH,
				KeyPath: "~/.ssh/id_ed25519",
			},
		},
		Output: OutputConfig{
			Directory: "./site",
			Clean:     true,
		},
		Publish: PublishConfig{
			Repository:    "git@github.com:example/project-site.git",
			Branch:        "main",
			DeployKeyPath: "/etc/bookship/deploy_key",
			AuthorName:    "bookship",
			AuthorEmail:   "bookship@localhost",
		},
		Notify: NotifyConfig{
			Slack: &SlackNotifyConfig{
				WebhookURL: "${SLACK_WEBHOOK_URL}",
			},
		},
		Daemon: &DaemonConfig{
			DataDir: "./data",
			HTTP: HTTPConfig{
				WebhookPort: 8081,
				AdminPort:   8082,
			},
			WebhookSecret: "${WEBHOOK_SECRET}",
			QueueSize:     16,
			Workers:       2,
			QuietWindow:   "2s",
			MaxDelay:      "30s",
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:3000",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
