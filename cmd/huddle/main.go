package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/tui"
	"github.com/huddlehq/huddle/pkg/cache"
	"github.com/huddlehq/huddle/pkg/client"
	"github.com/huddlehq/huddle/pkg/realtime"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir, err := huddleDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version", "-v":
			fmt.Println("huddle " + version)
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "login":
			// Drop the stored session so the TUI shows the login form.
			if err := clearAuth(dir); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			return runTUI(dir, cfg, authState{})
		case "logout":
			return runLogout(dir, cfg)
		case "update":
			return runUpdate()
		case "--update-done":
			if len(os.Args) >= 4 {
				printUpdateSuccess(os.Args[2], os.Args[3])
			}
			return nil
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	return runTUI(dir, cfg, loadAuth(dir))
}

func runTUI(dir string, cfg config, auth authState) error {
	logFile, err := setupLogging(dir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close() //nolint:errcheck
	log.Info().Str("version", version).Str("server", cfg.ServerURL).Msg("starting")

	api := client.New(cfg.ServerURL, auth.Token)
	api.SetCSRFToken(auth.CSRFToken)

	wsURL, err := cfg.socketURL()
	if err != nil {
		return err
	}
	channel := realtime.New(wsURL, auth.Token)
	defer channel.Close() //nolint:errcheck

	store, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		// The cache is an optimization; a nil store degrades to
		// online-only operation.
		log.Warn().Err(err).Msg("cache unavailable, running without offline copy")
		store = nil
	}
	defer store.Close() //nolint:errcheck

	persist := func(res *client.LoginResult) error {
		return saveAuth(dir, authState{Token: res.Token, CSRFToken: res.CSRFToken})
	}

	app := tui.NewApp(api, channel, store, version, auth.Token != "", persist)
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func runLogout(dir string, cfg config) error {
	auth := loadAuth(dir)
	if auth.Token == "" {
		fmt.Println("Already logged out.")
		return nil
	}

	// Invalidate the server session too, best effort.
	api := client.New(cfg.ServerURL, auth.Token)
	api.SetCSRFToken(auth.CSRFToken)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Logout(ctx); err != nil {
		fmt.Printf("Server logout failed (%v), clearing local session anyway.\n", err)
	}

	if err := clearAuth(dir); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
