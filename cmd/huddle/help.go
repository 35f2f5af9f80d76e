package main

import "fmt"

func printHelp() {
	fmt.Print(`huddle — encrypted team chat in your terminal

Usage:
  huddle            open the chat (shows the login form on first run)
  huddle login      sign in with a different account
  huddle logout     clear the stored session
  huddle update     self-update to the latest release
  huddle version    show version

Files:
  ~/.huddle/config.yaml   server_url, socket_path, log_level
  ~/.huddle/.env          optional env overrides (HUDDLE_SERVER_URL, ...)
  ~/.huddle/auth.json     stored session (0600)
  ~/.huddle/huddle.log    structured log
  ~/.huddle/cache/        offline message cache
`)
}
