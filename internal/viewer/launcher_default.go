//go:build !darwin && !windows

package viewer

func defaultBrowserCommand() (string, []string) {
	return "xdg-open", nil
}
