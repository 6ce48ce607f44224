package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileMissingGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[fetcher]
browserFallback = false

[clipboard]
backend = "memory"
command = ["xclip", "-selection", "clipboard"]

[github]
token = "from-file"
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	want := Default()
	want.Fetcher.BrowserFallback = false
	want.Clipboard.Backend = BackendMemory
	want.Clipboard.Command = []string{"xclip", "-selection", "clipboard"}
	want.GitHub.Token = "from-file"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "[github]\ntoken = \"from-file\"\n[log]\nlevel = \"warn\"\n")
	t.Setenv("CCR_GITHUB_TOKEN", "from-env")
	t.Setenv("CCR_SETTLE_MILLIS", "250")
	t.Setenv("CCR_CLIPBOARD_COMMAND", "wl-copy --type text/plain")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GitHub.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Settle())
	assert.Equal(t, []string{"wl-copy", "--type", "text/plain"}, cfg.Clipboard.Command)
}

func TestLoadFileRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"syntax":      "[fetcher\n",
		"unknown key": "[fetcher]\nuserAgnet = \"typo\"\n",
		"backend":     "[clipboard]\nbackend = \"carrier pigeon\"\n",
		"level":       "[log]\nlevel = \"loud\"\n",
		"timeout":     "[fetcher]\ntimeoutSeconds = 0\n",
		"negative":    "[engine]\nsettleMillis = -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Engine.WaitTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.Settle())
	assert.Equal(t, 2*time.Second, cfg.Clipboard.Confirm())
}

func TestDefaultTOMLDecodesToDefaults(t *testing.T) {
	s, err := DefaultTOML()
	require.NoError(t, err)
	assert.Contains(t, s, "[clipboard]")

	var got Config
	_, err = toml.Decode(s, &got)
	require.NoError(t, err)
	if diff := cmp.Diff(*Default(), got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("default TOML mismatch (-want +got):\n%s", diff)
	}
}
