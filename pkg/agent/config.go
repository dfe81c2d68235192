package agent

import (
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/models"
)

// FileConfig is the YAML structure of the shopagent server config file.
type FileConfig struct {
	// AppName is the runtime app the server exposes, e.g. "customer_service".
	AppName string `yaml:"app_name"`

	// Provider: "google" | "openai" | "bedrock"
	Provider string `yaml:"provider"`
	// Model defaults to the provider's default model.
	Model string `yaml:"model"`

	// APIKey can be a literal key or "${ENV_VAR}".
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways,
	// Gemini proxies).
	BaseURL string `yaml:"base_url"`
	// Region and Profile are used by Bedrock.
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`

	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`

	// Instruction is an optional Markdown file replacing the built-in
	// instruction.
	Instruction string `yaml:"instruction"`

	// MaxTurns caps model calls per run (0 = unlimited).
	MaxTurns        int      `yaml:"max_turns"`
	MaxRetries      int      `yaml:"max_retries"`
	RetryBaseDelay  Duration `yaml:"retry_base_delay"`
	ToolConcurrency int      `yaml:"tool_concurrency"`
	ToolTimeout     Duration `yaml:"tool_timeout"`
	MaxCostUSD      float64  `yaml:"max_cost_usd"`

	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) | "postgres"
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// ServerConfig configures the runtime HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
	// SessionsDir stores sessions as JSONL files; empty keeps them in memory.
	SessionsDir string `yaml:"sessions_dir"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name, default "info"
	Format string `yaml:"format"` // "text" (default) | "json"
}

// Duration decodes YAML strings such as "30s" or "1m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// LoadFileConfig reads and parses a YAML config file, expanding ${ENV_VAR}
// references before parsing, and applies defaults.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig parses config YAML held in memory.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	if err := validateFileConfig(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func validateFileConfig(cfg *FileConfig) error {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch {
	case cfg.Provider == "":
		return errors.New("config: provider is required")
	case cfg.AppName == "":
		return errors.New("config: app_name is required")
	}
	switch cfg.Provider {
	case "google", "openai", "bedrock":
	default:
		return errors.Errorf("config: unknown provider %q", cfg.Provider)
	}
	return nil
}

func (c *FileConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = models.DefaultFor(c.Provider)
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "customer_service.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// LoopConfig converts the file settings into a run Config.
func (c *FileConfig) LoopConfig() Config {
	return Config{
		StreamOptions: ai.StreamOptions{
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			APIKey:      c.APIKey,
		},
		MaxTurns:           c.MaxTurns,
		MaxRetries:         c.MaxRetries,
		RetryBaseDelay:     time.Duration(c.RetryBaseDelay),
		MaxToolConcurrency: c.ToolConcurrency,
		ToolTimeout:        time.Duration(c.ToolTimeout),
		MaxCostUSD:         c.MaxCostUSD,
	}
}
