package client_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitop-dev/shopagent/pkg/client"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := client.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	want := client.DefaultConfig()
	if *cfg != want {
		t.Errorf("got %+v, want %+v", *cfg, want)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("AGENT_BASE_URL", "https://agent.example.com/")
	t.Setenv("AGENT_APP_NAME", "shop")
	t.Setenv("AGENT_AUTH_TOKEN", "secret")
	t.Setenv("AGENT_RUN_TIMEOUT", "1m")

	cfg, err := client.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://agent.example.com" {
		t.Errorf("base url: got %q", cfg.BaseURL)
	}
	if cfg.AppName != "shop" || cfg.AuthToken != "secret" {
		t.Errorf("got %+v", cfg)
	}
	if cfg.RunTimeout != time.Minute {
		t.Errorf("run timeout: got %v", cfg.RunTimeout)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	data := "base_url: http://10.0.0.5:9000\nuser_id: alex\nrun_path: run\nrefetch_timeout: 5s\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := client.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://10.0.0.5:9000" || cfg.UserID != "alex" {
		t.Errorf("got %+v", cfg)
	}
	if cfg.RunPath != "/run" {
		t.Errorf("run path: got %q, want /run", cfg.RunPath)
	}
	if cfg.RefetchTimeout != 5*time.Second || cfg.SessionTimeout != 15*time.Second {
		t.Errorf("timeouts: got %v / %v", cfg.RefetchTimeout, cfg.SessionTimeout)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := client.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}
