package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/loginramp/internal/history"
)

const loginForm = `<html><body>
<form method="post" action="/login">
  <input type="text" name="username">
  <input type="password" name="password">
  <button type="submit">Sign in</button>
</form>
</body></html>`

func newLoginApp(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.FormValue("username") == "alice" && r.FormValue("password") == "secret" {
				http.Redirect(w, r, "/home", http.StatusSeeOther)
				return
			}
			http.Redirect(w, r, "/login?error=1", http.StatusSeeOther)
			return
		}
		if r.URL.Query().Get("error") != "" {
			fmt.Fprint(w, `<html><body><p class="error">Invalid credentials</p>`+loginForm+`</body></html>`)
			return
		}
		fmt.Fprint(w, loginForm)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1 id="welcome">Welcome</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, baseURL, password string) string {
	t.Helper()
	cfg := fmt.Sprintf(`target:
  base_url: %s
  username: alice
  password: %s
  error_selector: .error
  success_selector: "#welcome"
ramp:
  max_concurrency: 3
  session_timeout: 5s
  level_pause: 0s
report:
  dir: %s
  formats: [json, csv]
history:
  driver: file
  dir: %s
log:
  level: error
`, baseURL, password, filepath.Join(dir, "reports"), filepath.Join(dir, "history"))
	path := filepath.Join(dir, "loginramp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	app := newLoginApp(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, app.URL, "secret")

	out, err := execute(t, "run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Stop reason:  max_concurrency")
	assert.Contains(t, out, "Critical point: none detected")
	assert.Contains(t, out, "Max stable concurrency (>= 80%): 3")
	assert.Equal(t, 2, strings.Count(out, "Report written:"))

	reports, err := filepath.Glob(filepath.Join(dir, "reports", "loginramp-*"))
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	out, err = execute(t, "run", "--config", path, "--skip-preflight")
	require.NoError(t, err)
	assert.Contains(t, out, "Overall status: pass")

	out, err = execute(t, "history", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Equal(t, 2, strings.Count(out, app.URL+"/login"))

	store, err := history.NewFileStore(filepath.Join(dir, "history"), nil)
	require.NoError(t, err)
	records, err := store.List(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	out, err = execute(t, "history", "--config", path, "--run", records[0].RunID)
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "`+records[0].RunID+`"`)

	_, err = execute(t, "history", "--config", path, "--run", "no-such-run")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestEnvFileFromEnvironment(t *testing.T) {
	app := newLoginApp(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, app.URL, "secret")

	envFile := filepath.Join(dir, "ci.env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOGINRAMP_HISTORY_DRIVER=none\n"), 0600))
	t.Setenv("LOGINRAMP_ENV_FILE", filepath.Join(dir, "absent.env")+","+envFile)
	// godotenv leaves variables that are already set alone, even when empty.
	t.Setenv("LOGINRAMP_HISTORY_DRIVER", "")
	require.NoError(t, os.Unsetenv("LOGINRAMP_HISTORY_DRIVER"))

	assert.Equal(t, []string{filepath.Join(dir, "absent.env"), envFile}, defaultEnvFiles())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"history", "--config", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history is disabled")
}

func TestRunCommand_RejectedLogins(t *testing.T) {
	app := newLoginApp(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, app.URL, "wrong")

	out, err := execute(t, "run", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop reason:  zero_success")
	assert.Contains(t, out, "rejected")
}

func TestRunCommand_FlagOverrides(t *testing.T) {
	app := newLoginApp(t)
	dir := t.TempDir()
	t.Setenv("LOGINRAMP_HISTORY_DRIVER", "none")

	out, err := execute(t, "run",
		"--base-url", app.URL,
		"--username", "alice",
		"--password", "secret",
		"--max-concurrency", "2",
		"--level-pause", "0s",
		"--report-dir", filepath.Join(dir, "reports"),
		"--format", "text",
		"--log-level", "error",
		"--skip-preflight",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Sessions:     3 across 2 levels")
	assert.FileExists(t, strings.TrimSpace(strings.TrimPrefix(lastLine(out), "Report written:")))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.base_url is required")

	_, err = execute(t, "run", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid level")
}

func TestSmokeCommand(t *testing.T) {
	app := newLoginApp(t)

	out, err := execute(t, "smoke", "--base-url", app.URL, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "answered 200")

	_, err = execute(t, "smoke", "--base-url", app.URL+"/nowhere", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, err = execute(t, "smoke", "--log-level", "error")
	assert.Error(t, err)
}

func TestHistoryCommand_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  dir: "+filepath.Join(dir, "h")+"\nlog:\n  level: error\n"), 0600))

	out, err := execute(t, "history", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")

	require.NoError(t, os.WriteFile(path, []byte("history:\n  driver: none\n"), 0600))
	_, err = execute(t, "history", "--config", path)
	assert.Error(t, err)
}
