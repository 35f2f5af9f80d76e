// Package browser hands URLs to the desktop environment. The chat view
// uses it to open message attachments and linked files in whatever the
// user's default handler is.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open opens url with the platform's default handler. The child is
// started detached; errors cover only the launch, not what the handler
// does with the URL.
func Open(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}
