package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/constants"
)

func runConfigCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestShow_YAML(t *testing.T) {
	path := writeConfig(t, "viewer:\n  listen_addr: 127.0.0.1:9999\nsession:\n  auto_capture: false\n")

	out, err := runConfigCmd(t, "show", "--config", path)
	require.NoError(t, err)

	var got map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "127.0.0.1:9999", got["viewer"]["listen_addr"])
	assert.Equal(t, false, got["session"]["auto_capture"])
	assert.Equal(t, constants.DefaultReportURL, got["viewer"]["report_url"])
}

func TestShow_JSON(t *testing.T) {
	out, err := runConfigCmd(t, "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "-o", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got, "Viewer")
}

func TestShow_UnsupportedFormat(t *testing.T) {
	_, err := runConfigCmd(t, "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "-o", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestValidate(t *testing.T) {
	out, err := runConfigCmd(t, "validate", "--config", writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	_, err = runConfigCmd(t, "validate", "--config", writeConfig(t, "viewer:\n  listen_addr: nope\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen_addr")
}

func TestPath(t *testing.T) {
	out, err := runConfigCmd(t, "path", "--config", "/tmp/custom.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.yaml", strings.TrimSpace(out))
}
