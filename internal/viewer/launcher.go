package viewer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Launcher opens a URL in a browser.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, url string) error

func (f LauncherFunc) Launch(ctx context.Context, url string) error {
	return f(ctx, url)
}

// BrowserLauncher runs a browser command with the URL as last argument.
type BrowserLauncher struct {
	// Command is split on whitespace. Empty uses the platform opener.
	Command string
	Logger  zerolog.Logger
}

func (b *BrowserLauncher) command() (string, []string) {
	fields := strings.Fields(b.Command)
	if len(fields) == 0 {
		return defaultBrowserCommand()
	}
	return fields[0], fields[1:]
}

// Launch starts the browser and returns without waiting for it to exit.
func (b *BrowserLauncher) Launch(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, args := b.command()
	// The browser outlives the request, so the command is not bound to ctx.
	cmd := exec.Command(name, append(args, url)...) // #nosec G204 -- command comes from local configuration.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	b.Logger.Debug().Str("command", name).Str("url", url).Int("pid", cmd.Process.Pid).Msg("Launched browser")
	go func() {
		if err := cmd.Wait(); err != nil {
			b.Logger.Debug().Err(err).Str("command", name).Msg("Browser command exited with error")
		}
	}()
	return nil
}
