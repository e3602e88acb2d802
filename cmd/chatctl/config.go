package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigName = ".chatctl.yaml"

type fileConfig struct {
	ServerURL    string        `yaml:"server_url"`
	AssistantURL string        `yaml:"assistant_url"`
	Token        string        `yaml:"token"`
	AskTimeout   time.Duration `yaml:"ask_timeout"`
	Retries      int           `yaml:"retries"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		ServerURL:    "http://localhost:8080",
		AssistantURL: "http://localhost:5000",
		AskTimeout:   60 * time.Second,
		Retries:      2,
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(home, defaultConfigName)
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg fileConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, raw, 0o600)
}

// applyOverrides layers env and flags on top of the file. Flags win.
func (c *fileConfig) applyOverrides(f *globalFlags) {
	if v := strings.TrimSpace(os.Getenv("CHATCTL_TOKEN")); v != "" {
		c.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.AskTimeout = d
		}
	}
	if f.serverURL != "" {
		c.ServerURL = f.serverURL
	}
	if f.assistantURL != "" {
		c.AssistantURL = f.assistantURL
	}
	if f.token != "" {
		c.Token = f.token
	}
	if f.askTimeout > 0 {
		c.AskTimeout = f.askTimeout
	}
}
