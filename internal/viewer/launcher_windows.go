//go:build windows

package viewer

func defaultBrowserCommand() (string, []string) {
	return "rundll32", []string{"url.dll,FileProtocolHandler"}
}
