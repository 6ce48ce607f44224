package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hash = "1f0fc1d2e3a4b5c6d7e8f90a1b2c3d4e5f607182"

const gitwebPage = `<html><head><meta name="generator" content="gitweb/2.20.1 git/2.39.2"></head><body>
<div class="page_nav">summary | log | commit<br/>(parent: abc) | patch</div>
<div class="title_text"><table class="object_header">
<tr><td>author</td><td>Ann</td></tr>
<tr><td></td><td><span class="datetime">Tue, 2 Jan 2024 23:30:00 -0200</span></td></tr>
<tr><td>commit</td><td class="sha1">` + hash + `</td></tr>
</table></div>
<div class="page_body">Fix the &lt;frobnicator&gt;<br/><br/>Longer body.</div>
</body></html>`

func server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repo.git/commit":
			w.Write([]byte(gitwebPage))
		default:
			w.Write([]byte("<html><body><p>nothing to see</p></body></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the command line with a config that keeps everything local.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[fetcher]
browserFallback = false

[clipboard]
backend = "memory"
confirmMillis = 10

[log]
level = "error"
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPrint(t *testing.T) {
	srv := server(t)
	url := srv.URL + "/repo.git/commit"

	out, err := run(t, "print", url)
	require.NoError(t, err)
	assert.Equal(t,
		"text/plain: 1f0fc1d (Fix the <frobnicator>, 2024-01-03)\n"+
			`text/html: <a href="`+url+`">1f0fc1d</a> (Fix the &lt;frobnicator&gt;, 2024-01-03)`+"\n",
		out)
}

func TestCopyPrintsPlainText(t *testing.T) {
	srv := server(t)

	out, err := run(t, "copy", srv.URL+"/repo.git/commit")
	require.NoError(t, err)
	assert.Equal(t, "1f0fc1d (Fix the <frobnicator>, 2024-01-03)\n", out)
}

func TestUnrecognizedPage(t *testing.T) {
	srv := server(t)

	_, err := run(t, "print", srv.URL+"/elsewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider recognized the page")
}

func TestProviders(t *testing.T) {
	out, err := run(t, "providers")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, " 1. GitHub", lines[0])
	assert.Equal(t, "Phorge", lines[len(lines)-1][4:])
}

func TestInitConfigIgnoresBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[fetcher\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "init-config"})
	require.NoError(t, rootCmd.Execute())

	var decoded map[string]any
	_, err := toml.Decode(out.String(), &decoded)
	require.NoError(t, err)
	assert.Contains(t, decoded, "clipboard")
}
