//go:build darwin

package viewer

func defaultBrowserCommand() (string, []string) {
	return "open", nil
}
