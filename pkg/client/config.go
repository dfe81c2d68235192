package client

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the client configuration. Every field can be set in a YAML file
// or with an AGENT_ environment variable, e.g. AGENT_BASE_URL.
type Config struct {
	BaseURL   string `mapstructure:"base_url"`
	AppName   string `mapstructure:"app_name"`
	UserID    string `mapstructure:"user_id"`
	RunPath   string `mapstructure:"run_path"`
	AuthToken string `mapstructure:"auth_token"`

	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	RefetchTimeout time.Duration `mapstructure:"refetch_timeout"`
}

// DefaultConfig targets a local shopagent server.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		AppName:        "customer_service",
		UserID:         "shop_user",
		RunPath:        "/run_sse",
		SessionTimeout: 15 * time.Second,
		RunTimeout:     45 * time.Second,
		RefetchTimeout: 20 * time.Second,
	}
}

// LoadConfig reads path when it is non-empty, then applies AGENT_*
// environment overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("app_name", def.AppName)
	v.SetDefault("user_id", def.UserID)
	v.SetDefault("run_path", def.RunPath)
	v.SetDefault("auth_token", "")
	v.SetDefault("session_timeout", def.SessionTimeout)
	v.SetDefault("run_timeout", def.RunTimeout)
	v.SetDefault("refetch_timeout", def.RefetchTimeout)

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "client config: read %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "client config: decode")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("client config: base_url is required")
	}
	if !strings.HasPrefix(cfg.RunPath, "/") {
		cfg.RunPath = "/" + cfg.RunPath
	}
	return &cfg, nil
}
