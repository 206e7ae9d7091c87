package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const sampleYAML = `
target:
  base_url: https://app.example.com/
  login_path: /signin
  error_selector: .alert-danger
  accounts:
    - username: alice
      password: a-secret
    - username: bob
      password: b-secret
ramp:
  max_concurrency: 25
  session_timeout: 5s
  level_pause: 0s
  rate_threshold: 90
report:
  formats: [json, csv]
history:
  driver: none
log:
  level: debug
  format: console
`

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10, cfg.Ramp.MaxConcurrency)
	assert.Equal(t, 3, cfg.Ramp.FailureThreshold)
	assert.Equal(t, 12*time.Second, cfg.Ramp.SessionTimeout)
	assert.Equal(t, 2*time.Second, cfg.Ramp.LevelPause)
	assert.Equal(t, 20.0, cfg.Ramp.DropThreshold)
	assert.Equal(t, 80.0, cfg.Ramp.RateThreshold)
	assert.Equal(t, 50.0, cfg.Ramp.PoorRate)
	assert.Equal(t, "/login", cfg.Target.LoginPath)
	assert.Equal(t, HistoryFile, cfg.History.Driver)
	assert.Equal(t, []string{FormatJSON, FormatText}, cfg.Report.Formats)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loginramp.yaml", sampleYAML)

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/signin", cfg.Target.LoginURL())
	assert.Equal(t, cfg.Target.LoginURL(), cfg.Target.HealthURL())
	assert.Len(t, cfg.Target.Credentials(), 2)
	assert.Equal(t, 25, cfg.Ramp.MaxConcurrency)
	assert.Equal(t, 5*time.Second, cfg.Ramp.SessionTimeout)
	assert.Equal(t, time.Duration(0), cfg.Ramp.LevelPause)
	assert.Equal(t, 90.0, cfg.Ramp.RateThreshold)
	assert.Equal(t, 3, cfg.Ramp.FailureThreshold)
	assert.Equal(t, []string{FormatJSON, FormatCSV}, cfg.Report.Formats)
	assert.Equal(t, "debug", cfg.Log.Level)

	run := cfg.RunConfig()
	assert.Equal(t, "alice", run.Target.Account)
	assert.Equal(t, 25, run.MaxConcurrency)
	assert.Equal(t, 90.0, run.RateThreshold)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loginramp.yaml", sampleYAML)

	t.Setenv("LOGINRAMP_RAMP_MAX_CONCURRENCY", "7")
	t.Setenv("LOGINRAMP_RAMP_SESSION_TIMEOUT", "30s")
	t.Setenv("LOGINRAMP_REPORT_S3_BUCKET", "ramp-reports")
	t.Setenv("LOGINRAMP_LOG_LEVEL", "warn")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Ramp.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Ramp.SessionTimeout)
	assert.True(t, cfg.Report.S3.Enabled())
	assert.Equal(t, "warn", cfg.Log.Level)
	// untouched by the environment
	assert.Equal(t, 90.0, cfg.Ramp.RateThreshold)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "LOGINRAMP_TARGET_BASE_URL=http://localhost:8080\nLOGINRAMP_TARGET_USERNAME=carol\nLOGINRAMP_TARGET_PASSWORD=c-secret\n")

	t.Cleanup(func() {
		_ = os.Unsetenv("LOGINRAMP_TARGET_BASE_URL")
		_ = os.Unsetenv("LOGINRAMP_TARGET_USERNAME")
		_ = os.Unsetenv("LOGINRAMP_TARGET_PASSWORD")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/login", cfg.Target.LoginURL())
	creds := cfg.Target.Credentials()
	require.Len(t, creds, 1)
	assert.Equal(t, "carol", creds[0].Username)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "missing.env"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "target: [unterminated")
		_, err := Load(path, filepath.Join(dir, "missing.env"))
		assert.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		path := writeFile(t, dir, "ok.yaml", sampleYAML)
		t.Setenv("LOGINRAMP_RAMP_MAX_CONCURRENCY", "many")
		_, err := Load(path, filepath.Join(dir, "missing.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "environment")
	})
}

func TestRead_SkipsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "partial.yaml", "ramp:\n  max_concurrency: 4\n")

	_, err := Load(path, filepath.Join(dir, "missing.env"))
	require.Error(t, err)

	cfg, err := Read(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Ramp.MaxConcurrency)
	assert.Equal(t, "/login", cfg.Target.LoginPath)

	cfg.Target.BaseURL = "http://127.0.0.1:8080"
	cfg.Target.Username = "alice"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Target.BaseURL = "https://app.example.com"
		cfg.Target.Username = "alice"
		cfg.Target.Password = "secret"
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.Target.BaseURL = "" }, "base_url"},
		{"non http base url", func(c *Config) { c.Target.BaseURL = "ftp://x" }, "base_url"},
		{"relative login path", func(c *Config) { c.Target.LoginPath = "login" }, "login_path"},
		{"no accounts", func(c *Config) { c.Target.Username = "" }, "account"},
		{"zero concurrency", func(c *Config) { c.Ramp.MaxConcurrency = 0 }, "max concurrency"},
		{"unknown format", func(c *Config) { c.Report.Formats = []string{"pdf"} }, "pdf"},
		{"postgres without dsn", func(c *Config) { c.History.Driver = HistoryPostgres }, "dsn"},
		{"unknown history driver", func(c *Config) { c.History.Driver = "redis" }, "redis"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTargetConfig_Credentials(t *testing.T) {
	tc := TargetConfig{Username: "solo", Password: "pw"}
	assert.Equal(t, []Account{{Username: "solo", Password: "pw"}}, tc.Credentials())

	tc.Accounts = []Account{{Username: "a"}, {Username: "b"}}
	assert.Len(t, tc.Credentials(), 2)

	assert.Nil(t, TargetConfig{}.Credentials())
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("LOGINRAMP_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("LOGINRAMP_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("LOGINRAMP_TEST_UNSET", "fallback"))
}
