package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/loginramp/internal/loadtest"
	"github.com/FairForge/loginramp/internal/logger"
)

// History drivers
const (
	HistoryNone     = "none"
	HistoryFile     = "file"
	HistoryPostgres = "postgres"
)

// Report formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

type Config struct {
	Target  TargetConfig  `yaml:"target" envPrefix:"TARGET_"`
	Ramp    RampConfig    `yaml:"ramp" envPrefix:"RAMP_"`
	Report  ReportConfig  `yaml:"report" envPrefix:"REPORT_"`
	History HistoryConfig `yaml:"history" envPrefix:"HISTORY_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Log     logger.Config `yaml:"log" envPrefix:"LOG_"`
}

type Account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type TargetConfig struct {
	BaseURL         string `yaml:"base_url" env:"BASE_URL"`
	LoginPath       string `yaml:"login_path" env:"LOGIN_PATH"`
	HealthPath      string `yaml:"health_path" env:"HEALTH_PATH"`
	UsernameField   string `yaml:"username_field" env:"USERNAME_FIELD"`
	PasswordField   string `yaml:"password_field" env:"PASSWORD_FIELD"`
	FormSelector    string `yaml:"form_selector" env:"FORM_SELECTOR"`
	ErrorSelector   string `yaml:"error_selector" env:"ERROR_SELECTOR"`
	SuccessSelector string `yaml:"success_selector" env:"SUCCESS_SELECTOR"`

	// Username and Password describe a single account; Accounts takes
	// precedence when both are set.
	Username string    `yaml:"username" env:"USERNAME"`
	Password string    `yaml:"password" env:"PASSWORD"`
	Accounts []Account `yaml:"accounts" env:"-"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// Credentials returns the accounts sessions rotate through.
func (t TargetConfig) Credentials() []Account {
	if len(t.Accounts) > 0 {
		return t.Accounts
	}
	if t.Username != "" {
		return []Account{{Username: t.Username, Password: t.Password}}
	}
	return nil
}

// LoginURL joins the base URL and login path.
func (t TargetConfig) LoginURL() string {
	return strings.TrimRight(t.BaseURL, "/") + t.LoginPath
}

// HealthURL is the URL the preflight check probes.
func (t TargetConfig) HealthURL() string {
	if t.HealthPath == "" {
		return t.LoginURL()
	}
	return strings.TrimRight(t.BaseURL, "/") + t.HealthPath
}

type RampConfig struct {
	MaxConcurrency   int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SessionTimeout   time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT"`
	LevelPause       time.Duration `yaml:"level_pause" env:"LEVEL_PAUSE"`
	LaunchRate       float64       `yaml:"launch_rate" env:"LAUNCH_RATE"`
	DropThreshold    float64       `yaml:"drop_threshold" env:"DROP_THRESHOLD"`
	RateThreshold    float64       `yaml:"rate_threshold" env:"RATE_THRESHOLD"`
	PoorRate         float64       `yaml:"poor_rate" env:"POOR_RATE"`
}

type ReportConfig struct {
	Dir     string   `yaml:"dir" env:"DIR"`
	Formats []string `yaml:"formats" env:"FORMATS"`
	S3      S3Config `yaml:"s3" envPrefix:"S3_"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Prefix    string `yaml:"prefix" env:"PREFIX"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	Region    string `yaml:"region" env:"REGION"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
}

// Enabled reports whether reports should be uploaded.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

type HistoryConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Dir    string `yaml:"dir" env:"DIR"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics server; empty disables it.
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	run := loadtest.DefaultRunConfig()
	cfg := &Config{
		Ramp: RampConfig{
			MaxConcurrency:   run.MaxConcurrency,
			FailureThreshold: run.FailureThreshold,
			SessionTimeout:   run.SessionTimeout,
			LevelPause:       run.LevelPause,
			LaunchRate:       run.LaunchRate,
			DropThreshold:    run.DropThreshold,
			RateThreshold:    run.RateThreshold,
			PoorRate:         run.PoorRate,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in values that have no meaningful zero.
func (c *Config) ApplyDefaults() {
	if c.Target.LoginPath == "" {
		c.Target.LoginPath = "/login"
	}
	if c.Target.UsernameField == "" {
		c.Target.UsernameField = "username"
	}
	if c.Target.PasswordField == "" {
		c.Target.PasswordField = "password"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
	if len(c.Report.Formats) == 0 {
		c.Report.Formats = []string{FormatJSON, FormatText}
	}
	if c.Report.S3.Region == "" {
		c.Report.S3.Region = "us-east-1"
	}
	if c.History.Driver == "" {
		c.History.Driver = HistoryFile
	}
	if c.History.Dir == "" {
		c.History.Dir = ".loginramp/history"
	}
	c.Log.ApplyDefaults()
}

// Load reads the configuration with Read and validates it.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := Read(path, envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the YAML file at path (optional), then .env files, then the
// LOGINRAMP_ environment. Later sources win. The result is not validated so
// callers can apply their own overrides first.
func Read(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if _, err := LoadEnvFiles(envFiles); err != nil {
		return nil, fmt.Errorf("config: load env files: %w", err)
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Target.BaseURL == "" {
		errs = append(errs, errors.New("config: target.base_url is required"))
	} else if u, err := url.Parse(c.Target.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: target.base_url must be an http(s) URL, got %q", c.Target.BaseURL))
	}
	if !strings.HasPrefix(c.Target.LoginPath, "/") {
		errs = append(errs, fmt.Errorf("config: target.login_path must start with /, got %q", c.Target.LoginPath))
	}
	if len(c.Target.Credentials()) == 0 {
		errs = append(errs, errors.New("config: at least one target account is required"))
	}

	if err := c.RunConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: ramp: %w", err))
	}

	for _, f := range c.Report.Formats {
		switch f {
		case FormatJSON, FormatCSV, FormatText:
		default:
			errs = append(errs, fmt.Errorf("config: unknown report format %q", f))
		}
	}

	switch c.History.Driver {
	case HistoryNone, HistoryFile:
	case HistoryPostgres:
		if c.History.DSN == "" {
			errs = append(errs, errors.New("config: history.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown history driver %q", c.History.Driver))
	}

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

// RunConfig converts the ramp and target sections into the run
// configuration snapshot recorded with every run.
func (c *Config) RunConfig() loadtest.RunConfig {
	account := ""
	if creds := c.Target.Credentials(); len(creds) > 0 {
		account = creds[0].Username
	}
	return loadtest.RunConfig{
		Target: loadtest.Target{
			Endpoint: c.Target.LoginURL(),
			Account:  account,
		},
		MaxConcurrency:   c.Ramp.MaxConcurrency,
		FailureThreshold: c.Ramp.FailureThreshold,
		SessionTimeout:   c.Ramp.SessionTimeout,
		LevelPause:       c.Ramp.LevelPause,
		LaunchRate:       c.Ramp.LaunchRate,
		DropThreshold:    c.Ramp.DropThreshold,
		RateThreshold:    c.Ramp.RateThreshold,
		PoorRate:         c.Ramp.PoorRate,
	}
}
