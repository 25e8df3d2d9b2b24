package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// validateConfig validates the complete configuration structure.
func validateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validatePipeline(); err != nil {
		return err
	}
	if err := cv.validateSource(); err != nil {
		return err
	}
	if err := cv.validatePublish(); err != nil {
		return err
	}
	if err := cv.validateNotify(); err != nil {
		return err
	}
	if err := cv.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validatePipeline() error {
	p := cv.config.Pipeline
	if p.Name == "" {
		return errors.New("pipeline name cannot be empty")
	}
	if strings.ContainsAny(p.Name, " \t/") {
		return fmt.Errorf("pipeline name must not contain spaces or slashes: %q", p.Name)
	}
	if !strings.HasPrefix(p.Ref, "refs/") {
		return fmt.Errorf("pipeline ref must be fully qualified: %q", p.Ref)
	}
	return nil
}

func (cv *configurationValidator) validateSource() error {
	s := cv.config.Source
	if s.URL != "" && s.Branch == "" {
		return errors.New("source branch cannot be empty when a source url is set")
	}
	if err := cv.validateRetryBackoff(); err != nil {
		return err
	}
	if err := cv.validateRetryDelays(); err != nil {
		return err
	}
	if s.Auth != nil && !s.Auth.IsZero() {
		switch s.Auth.Type {
		case AuthTypeSSH:
			if s.Auth.KeyPath == "" && s.Auth.KeyEnv == "" {
				return errors.New("ssh auth requires key_path or key_env")
			}
		case AuthTypeToken:
			if s.Auth.Token == "" {
				return errors.New("token auth requires a token")
			}
		case AuthTypeBasic:
			if s.Auth.Username == "" || s.Auth.Password == "" {
				return errors.New("basic auth requires username and password")
			}
		default:
			return fmt.Errorf("unknown auth type: %s", s.Auth.Type)
		}
	}
	return nil
}

// validateRetryBackoff validates the retry backoff strategy.
func (cv *configurationValidator) validateRetryBackoff() error {
	switch cv.config.Source.RetryBackoff {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
		// Valid backoff strategies
	default:
		return fmt.Errorf("invalid retry_backoff: %s (allowed: fixed|linear|exponential)", cv.config.Source.RetryBackoff)
	}
	return nil
}

// validateRetryDelays validates retry delay durations and their relationship.
func (cv *configurationValidator) validateRetryDelays() error {
	initDur, err := time.ParseDuration(cv.config.Source.RetryInitialDelay)
	if err != nil {
		return fmt.Errorf("invalid retry_initial_delay: %s: %w", cv.config.Source.RetryInitialDelay, err)
	}

	maxDur, err := time.ParseDuration(cv.config.Source.RetryMaxDelay)
	if err != nil {
		return fmt.Errorf("invalid retry_max_delay: %s: %w", cv.config.Source.RetryMaxDelay, err)
	}

	if maxDur < initDur {
		return fmt.Errorf("retry_max_delay (%s) must be >= retry_initial_delay (%s)",
			cv.config.Source.RetryMaxDelay, cv.config.Source.RetryInitialDelay)
	}

	return nil
}

func (cv *configurationValidator) validatePublish() error {
	p := cv.config.Publish
	if p.Repository == "" {
		// Build-only setups are valid; publish stage requires the target.
		return nil
	}
	if p.Branch == "" {
		return errors.New("publish branch cannot be empty")
	}
	for _, keep := range p.KeepPaths {
		clean := strings.TrimSpace(keep)
		if clean == "" || strings.HasPrefix(clean, "/") || strings.Contains(clean, "..") {
			return fmt.Errorf("invalid keep_paths entry: %q", keep)
		}
	}
	return nil
}

func (cv *configurationValidator) validateNotify() error {
	n := cv.config.Notify
	if n.Slack != nil && n.Slack.WebhookURL == "" {
		return errors.New("slack notification requires webhook_url")
	}
	if n.GitHub != nil {
		if n.GitHub.Owner == "" || n.GitHub.Repo == "" {
			return errors.New("github notification requires owner and repo")
		}
		if n.GitHub.Token == "" && n.GitHub.App == nil {
			return errors.New("github notification requires a token or app credentials")
		}
		if n.GitHub.App != nil {
			if n.GitHub.App.ID == 0 || n.GitHub.App.InstallationID == 0 || n.GitHub.App.PrivateKeyPath == "" {
				return errors.New("github app notification requires id, installation_id and private_key_path")
			}
		}
	}
	if n.NATS != nil && n.NATS.URL == "" {
		return errors.New("nats notification requires url")
	}
	return nil
}

func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if d == nil {
		return nil
	}
	if d.HTTP.WebhookPort == d.HTTP.AdminPort {
		return fmt.Errorf("webhook_port and admin_port must differ (both %d)", d.HTTP.WebhookPort)
	}
	for name, port := range map[string]int{"webhook_port": d.HTTP.WebhookPort, "admin_port": d.HTTP.AdminPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if d.Schedule != "" {
		dur, err := time.ParseDuration(d.Schedule)
		if err != nil {
			return fmt.Errorf("invalid daemon schedule: %s: %w", d.Schedule, err)
		}
		if dur < time.Minute {
			return fmt.Errorf("daemon schedule below 1m: %s", d.Schedule)
		}
	}
	quiet, err := time.ParseDuration(d.QuietWindow)
	if err != nil {
		return fmt.Errorf("invalid quiet_window: %s: %w", d.QuietWindow, err)
	}
	maxDelay, err := time.ParseDuration(d.MaxDelay)
	if err != nil {
		return fmt.Errorf("invalid max_delay: %s: %w", d.MaxDelay, err)
	}
	if maxDelay < quiet {
		return fmt.Errorf("max_delay (%s) must be >= quiet_window (%s)", d.MaxDelay, d.QuietWindow)
	}
	return nil
}
