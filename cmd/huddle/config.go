package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// config is the on-disk configuration, read from ~/.huddle/config.yaml
// with environment overrides on top.
type config struct {
	ServerURL  string `yaml:"server_url"`
	SocketPath string `yaml:"socket_path"`
	LogLevel   string `yaml:"log_level"`
}

// authState is the persisted session, stored separately from config so
// logout can remove it without touching user settings.
type authState struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrf_token,omitempty"`
}

const defaultServerURL = "https://huddle.chat"

// huddleDir returns ~/.huddle, creating it on first use.
func huddleDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".huddle")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// loadConfig resolves settings with precedence: env > ~/.huddle/.env >
// ~/.huddle/config.yaml > defaults.
func loadConfig(dir string) (config, error) {
	cfg := config{
		ServerURL:  defaultServerURL,
		SocketPath: "/socket",
		LogLevel:   "info",
	}

	path := filepath.Join(dir, "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// .env files are optional and never override a real environment.
	godotenv.Load(filepath.Join(dir, ".env")) //nolint:errcheck

	if v := os.Getenv("HUDDLE_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("HUDDLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return cfg, nil
}

// socketURL derives the websocket endpoint from the server URL.
func (c config) socketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = c.SocketPath
	return u.String(), nil
}

// setupLogging routes zerolog to ~/.huddle/huddle.log. The terminal
// belongs to the TUI, so nothing may write to stderr while it runs.
func setupLogging(dir, level string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, "huddle.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(f).Level(lvl).With().Timestamp().Logger()
	return f, nil
}

func authPath(dir string) string {
	return filepath.Join(dir, "auth.json")
}

// loadAuth returns the stored session. A missing or unreadable file
// just means signed out.
func loadAuth(dir string) authState {
	if tok := os.Getenv("HUDDLE_TOKEN"); tok != "" {
		return authState{Token: tok}
	}
	data, err := os.ReadFile(authPath(dir))
	if err != nil {
		return authState{}
	}
	var a authState
	if err := json.Unmarshal(data, &a); err != nil {
		return authState{}
	}
	return a
}

func saveAuth(dir string, a authState) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal auth: %w", err)
	}
	if err := os.WriteFile(authPath(dir), data, 0600); err != nil {
		return fmt.Errorf("save auth: %w", err)
	}
	return nil
}

func clearAuth(dir string) error {
	err := os.Remove(authPath(dir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
