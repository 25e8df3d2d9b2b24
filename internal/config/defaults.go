package config

// applyDefaults fills unset fields with canonical defaults. It runs after
// unmarshal and before validation.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "docs"
	}

	// Ref and source branch default off each other: a configured branch
	// implies the matching ref gate and vice versa. With neither set the
	// pipeline follows master.
	cfg.Pipeline.Ref = NormalizeRef(cfg.Pipeline.Ref)
	if cfg.Pipeline.Ref == "" {
		if cfg.Source.Branch != "" {
			cfg.Pipeline.Ref = NormalizeRef(cfg.Source.Branch)
		} else {
			cfg.Pipeline.Ref = "refs/heads/master"
		}
	}
	if cfg.Source.Branch == "" {
		cfg.Source.Branch = RefBranch(cfg.Pipeline.Ref)
	}

	if cfg.Source.MaxRetries == 0 {
		cfg.Source.MaxRetries = 2
	}
	if cfg.Source.MaxRetries < 0 {
		cfg.Source.MaxRetries = 0
	}
	if cfg.Source.RetryBackoff == "" {
		cfg.Source.RetryBackoff = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(cfg.Source.RetryBackoff)); m != "" {
		cfg.Source.RetryBackoff = m
	}
	if cfg.Source.RetryInitialDelay == "" {
		cfg.Source.RetryInitialDelay = "1s"
	}
	if cfg.Source.RetryMaxDelay == "" {
		cfg.Source.RetryMaxDelay = "30s"
	}
	if cfg.Source.ShallowDepth < 0 {
		cfg.Source.ShallowDepth = 0
	}

	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "./site"
		cfg.Output.Clean = true
	}

	if cfg.Publish.Branch == "" {
		cfg.Publish.Branch = "main"
	}
	if cfg.Publish.CommitTemplate == "" {
		cfg.Publish.CommitTemplate = "deploy: {short_commit}"
	}
	if cfg.Publish.AuthorName == "" {
		cfg.Publish.AuthorName = "bookship"
	}
	if cfg.Publish.AuthorEmail == "" {
		cfg.Publish.AuthorEmail = "bookship@localhost"
	}

	if cfg.Notify.NATS != nil {
		if cfg.Notify.NATS.Subject == "" {
			cfg.Notify.NATS.Subject = "bookship.runs"
		}
		if cfg.Notify.NATS.Stream == "" {
			cfg.Notify.NATS.Stream = "BOOKSHIP"
		}
	}

	if cfg.Daemon != nil {
		if cfg.Daemon.DataDir == "" {
			cfg.Daemon.DataDir = "./data"
		}
		if cfg.Daemon.HTTP.WebhookPort == 0 {
			cfg.Daemon.HTTP.WebhookPort = 8081
		}
		if cfg.Daemon.HTTP.AdminPort == 0 {
			cfg.Daemon.HTTP.AdminPort = 8082
		}
		if cfg.Daemon.QueueSize <= 0 {
			cfg.Daemon.QueueSize = 16
		}
		if cfg.Daemon.Workers <= 0 {
			cfg.Daemon.Workers = 2
		}
		if cfg.Daemon.QuietWindow == "" {
			cfg.Daemon.QuietWindow = "2s"
		}
		if cfg.Daemon.MaxDelay == "" {
			cfg.Daemon.MaxDelay = "30s"
		}
	}

	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = "127.0.0.1:3000"
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}
