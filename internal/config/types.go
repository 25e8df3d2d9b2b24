package config

import "strings"

// PipelineConfig identifies the pipeline and the ref it publishes for.
type PipelineConfig struct {
	// Name is the pipeline identifier used in logs, metrics, commit statuses
	// and concurrency group keys. Defaults to "docs".
	Name string `yaml:"name,omitempty"`
	// Ref is the fully qualified git ref this pipeline publishes for. Runs
	// triggered for any other ref still build but skip the publish stage.
	// A bare branch name is normalized to refs/heads/<name>. Defaults to
	// refs/heads/master.
	Ref string `yaml:"ref,omitempty"`
	// EngineVersion pins the bookship version this pipeline expects, either
	// exact ("1.3.0") or as a component prefix ("1.3"). Runs refuse to start
	// on a mismatching binary so that rendered output stays reproducible.
	// Empty disables the check.
	EngineVersion string `yaml:"engine_version,omitempty"`
	// LinkCheck controls verification of the rendered site between build
	// and publish.
	LinkCheck LinkCheckConfig `yaml:"linkcheck,omitempty"`
}

// LinkCheckConfig controls the rendered-site link verification stage.
type LinkCheckConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// Fatal promotes broken intra-site links from warnings to a stage
	// failure, aborting the run before publish.
	Fatal bool `yaml:"fatal,omitempty"`
}

// SourceConfig describes where the book sources come from.
type SourceConfig struct {
	// URL of the git repository holding the book. Empty means the local
	// working tree is used directly (build/serve without a checkout).
	URL string `yaml:"url,omitempty"`
	// Branch to check out. Defaults to the branch of pipeline.ref.
	Branch string `yaml:"branch,omitempty"`
	// Dir is the book directory inside the repository (the directory that
	// holds book.toml and src/). Defaults to "book" when present, else ".".
	Dir string `yaml:"dir,omitempty"`
	// Auth configures checkout credentials. Publish credentials are
	// configured separately under publish (deploy key).
	Auth *AuthConfig `yaml:"auth,omitempty"`
	// ShallowDepth, when >0, performs shallow clones limited to the given
	// number of commits (git --depth semantics). 0 means full history.
	ShallowDepth int `yaml:"shallow_depth,omitempty"`
	// Retry policy for transient checkout failures.
	MaxRetries        int              `yaml:"max_retries,omitempty"`         // retry attempts after the first failure (default 2)
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`       // fixed|linear|exponential (default linear)
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"` // duration string (default 1s)
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`     // cap for growth (default 30s)
	// HardResetOnDiverge resets an existing checkout to origin/<branch>
	// when local history has diverged instead of failing the run.
	HardResetOnDiverge bool `yaml:"hard_reset_on_diverge,omitempty"`
}

// AuthType enumerates supported authentication methods (stringly for YAML compatibility)
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents authentication configuration for source checkout.
type AuthConfig struct {
	Type     AuthType `yaml:"type"` // ssh|token|basic|none
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
	// KeyEnv names an environment variable holding the private key material
	// directly, for setups where no key file exists on disk.
	KeyEnv string `yaml:"key_env,omitempty"`
}

// IsZero reports whether no auth method specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// OutputConfig represents output configuration
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"` // Clean output directory before build
}

// PublishConfig describes the external repository the rendered site is
// pushed to. Publishing replaces the branch content wholesale: files deleted
// from the book disappear from the published site.
type PublishConfig struct {
	// Repository is the push URL of the hosting repository. SSH URLs are
	// expected when a deploy key is configured.
	Repository string `yaml:"repository"`
	// Branch that serves the site. Defaults to "main".
	Branch string `yaml:"branch,omitempty"`
	// DeployKeyPath points at the private deploy key file used for the push.
	DeployKeyPath string `yaml:"deploy_key_path,omitempty"`
	// DeployKeyEnv names an environment variable holding the key material
	// directly. Takes precedence over DeployKeyPath when both are set.
	DeployKeyEnv string `yaml:"deploy_key_env,omitempty"`
	// CNAME, when set, is written as a CNAME file into the published root.
	CNAME string `yaml:"cname,omitempty"`
	// EnableJekyll suppresses the .nojekyll marker file. By default the
	// marker is written so GitHub Pages serves the output verbatim.
	EnableJekyll bool `yaml:"enable_jekyll,omitempty"`
	// ForceOrphan rewrites the publish branch as a single fresh commit on
	// every publish instead of appending to its history.
	ForceOrphan bool `yaml:"force_orphan,omitempty"`
	// KeepPaths lists top-level paths in the target branch that survive the
	// wholesale replacement (e.g. a custom robots.txt maintained there).
	KeepPaths []string `yaml:"keep_paths,omitempty"`
	// CommitTemplate renders the publish commit message. Placeholders:
	// {pipeline}, {ref}, {commit}, {short_commit}. Default "deploy: {short_commit}".
	CommitTemplate string `yaml:"commit_template,omitempty"`
	AuthorName     string `yaml:"author_name,omitempty"`
	AuthorEmail    string `yaml:"author_email,omitempty"`
}

// NotifyConfig groups optional outbound notification sinks. All sinks are
// best-effort: delivery failures are logged and never fail a run.
type NotifyConfig struct {
	Slack  *SlackNotifyConfig  `yaml:"slack,omitempty"`
	GitHub *GitHubNotifyConfig `yaml:"github,omitempty"`
	NATS   *NATSNotifyConfig   `yaml:"nats,omitempty"`
}

// SlackNotifyConfig posts run outcomes to a Slack incoming webhook.
type SlackNotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// OnSuccess also announces successful runs; failures are always sent.
	OnSuccess bool `yaml:"on_success,omitempty"`
}

// GitHubNotifyConfig reports run state as commit statuses on the source
// repository (context bookship/<pipeline>).
type GitHubNotifyConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token,omitempty"`
	APIURL string `yaml:"api_url,omitempty"` // for GitHub Enterprise
	// App authenticates as a GitHub App installation instead of a token.
	App *GitHubAppConfig `yaml:"app,omitempty"`
}

// GitHubAppConfig holds GitHub App installation credentials.
type GitHubAppConfig struct {
	ID             int64  `yaml:"id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// NATSNotifyConfig publishes run lifecycle events as JSON to a JetStream
// subject.
type NATSNotifyConfig struct {
	URL       string `yaml:"url"`
	Subject   string `yaml:"subject,omitempty"` // default bookship.runs
	Stream    string `yaml:"stream,omitempty"`  // default BOOKSHIP
	CredsFile string `yaml:"creds_file,omitempty"`
}

// DaemonConfig represents daemon-specific configuration
type DaemonConfig struct {
	// DataDir holds the run database and checkout workspaces. Default "./data".
	DataDir string     `yaml:"data_dir,omitempty"`
	HTTP    HTTPConfig `yaml:"http"`
	// WebhookSecret validates X-Hub-Signature-256 on incoming pushes.
	// Empty disables signature verification.
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	// Schedule triggers periodic runs at a fixed interval (duration string,
	// e.g. "4h") to repair drift when webhooks were missed. Empty disables
	// scheduled runs; pushes remain the only trigger then.
	Schedule string `yaml:"schedule,omitempty"`
	// QueueSize bounds the webhook trigger intake queue (default 16).
	// When full, deliveries are answered 503 so the forge retries.
	QueueSize int `yaml:"queue_size,omitempty"`
	// Workers caps the number of concurrency groups running at once
	// (default 2). Runs inside one group are always serialized.
	Workers int `yaml:"workers,omitempty"`
	// QuietWindow delays a run after a trigger so rapid push bursts coalesce
	// into one run (duration string, default 2s).
	QuietWindow string `yaml:"quiet_window,omitempty"`
	// MaxDelay caps how long coalescing may defer a run (duration string,
	// default 30s).
	MaxDelay string `yaml:"max_delay,omitempty"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	WebhookPort int `yaml:"webhook_port"` // Webhook reception port
	AdminPort   int `yaml:"admin_port"`   // Admin/status endpoints port
}

// ServeConfig configures the local preview server.
type ServeConfig struct {
	Addr string `yaml:"addr,omitempty"` // default 127.0.0.1:3000
	Open bool   `yaml:"open,omitempty"` // open the browser once serving
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// RefBranch returns the branch component of a fully qualified branch ref,
// or the input unchanged when it does not carry the refs/heads/ prefix.
func RefBranch(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// NormalizeRef qualifies a bare branch name as refs/heads/<name>. Inputs
// already carrying a refs/ prefix pass through unchanged.
func NormalizeRef(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "refs/") {
		return s
	}
	return "refs/heads/" + s
}
