package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort    = 8080
	DefaultSnapshotTTL = 24 * time.Hour
)

// Defaults for the analysis parameters.
const (
	DefaultMaxCycleSeconds   = 3600
	DefaultCapMinutes        = 1440
	DefaultThresholdMinutes  = 60
	DefaultTimeWindowMinutes = 5
	DefaultMinBatchSize      = 3
	DefaultGridStep          = 10
)

// DefaultStageChain is the stage order used when the config names none.
var DefaultStageChain = []string{
	"PTH_INPUT", "TOUCH_INSPECT", "TOUCH_UP", "ICT",
	"FT1", "FINAL_VI", "FINAL_INSPECT", "PACKING",
}

// DefaultRepairStages are the off-chain repair loops used for censoring.
var DefaultRepairStages = []string{"TUP_REPAIR", "ICT_REPAIR", "FT_REPAIR"}

// Config holds the configuration parsed from the `server:` and `analysis:`
// sections of config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds the listener and retention settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Snapshot controls in-memory visit retention per line.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// SnapshotConfig controls in-memory visit retention.
type SnapshotConfig struct {
	// TTL is how long a line's visits remain in the store after its last
	// ingest. When TTL elapses without new data the line is evicted.
	// Default: 24h.
	TTL time.Duration `yaml:"ttl"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over flow metrics:
	// "total_held_units > 10", "worst_efficiency < 70",
	// "suspicious_percentage > 25", "batch_count > 1".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// AnalysisConfig holds the parameters shared by the analyzers.
type AnalysisConfig struct {
	// StageChain is the ordered list of process stages. Position defines
	// upstream/downstream.
	StageChain []string `yaml:"stage_chain"`

	// RepairStages are off-chain repair loops whose presence censors dwell
	// samples when censor_repairs is requested.
	RepairStages []string `yaml:"repair_stages"`

	// MaxCycleSeconds caps a single hop duration in the cycle-time tables.
	MaxCycleSeconds int `yaml:"max_cycle_seconds"`

	// CapMinutes caps a dwell sample end to end.
	CapMinutes int `yaml:"cap_minutes"`

	// ThresholdMinutes is the inspect-to-pack delay past which a unit is
	// suspicious.
	ThresholdMinutes int `yaml:"threshold_minutes"`

	// TimeWindowMinutes is the packing-proximity clustering window.
	TimeWindowMinutes int `yaml:"time_window_minutes"`

	// MinBatchSize is the smallest cluster reported as a batch.
	MinBatchSize int `yaml:"min_batch_size"`

	// GridStep is the default ECDF grid step in minutes.
	GridStep int `yaml:"grid_step"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. Load starts
// from it; the analyze CLI uses it directly when no config file is given.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Snapshot: SnapshotConfig{
				TTL: DefaultSnapshotTTL,
			},
		},
		Analysis: AnalysisConfig{
			StageChain:        append([]string(nil), DefaultStageChain...),
			RepairStages:      append([]string(nil), DefaultRepairStages...),
			MaxCycleSeconds:   DefaultMaxCycleSeconds,
			CapMinutes:        DefaultCapMinutes,
			ThresholdMinutes:  DefaultThresholdMinutes,
			TimeWindowMinutes: DefaultTimeWindowMinutes,
			MinBatchSize:      DefaultMinBatchSize,
			GridStep:          DefaultGridStep,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	if len(cfg.Analysis.StageChain) < 2 {
		return fmt.Errorf("analysis.stage_chain needs at least 2 stages, got %d", len(cfg.Analysis.StageChain))
	}
	if cfg.Analysis.MaxCycleSeconds <= 0 {
		return fmt.Errorf("analysis.max_cycle_seconds must be positive")
	}
	if cfg.Analysis.CapMinutes <= 0 {
		return fmt.Errorf("analysis.cap_minutes must be positive")
	}
	if cfg.Analysis.ThresholdMinutes <= 0 {
		return fmt.Errorf("analysis.threshold_minutes must be positive")
	}
	if cfg.Analysis.TimeWindowMinutes <= 0 {
		return fmt.Errorf("analysis.time_window_minutes must be positive")
	}
	if cfg.Analysis.MinBatchSize <= 0 {
		return fmt.Errorf("analysis.min_batch_size must be positive")
	}
	if cfg.Analysis.GridStep <= 0 {
		return fmt.Errorf("analysis.grid_step must be positive")
	}
	return nil
}
