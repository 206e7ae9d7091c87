package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/FairForge/loginramp/internal/config"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "loginramp",
		Short:         "Find the login concurrency a web application can sustain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringSliceVar(&opts.envFiles, "env-file", defaultEnvFiles(),
		"Env files to load (default "+config.EnvPrefix+"ENV_FILE, else .env, .env.local)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: json, console")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newSmokeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

// defaultEnvFiles reads a comma separated list from LOGINRAMP_ENV_FILE.
func defaultEnvFiles() []string {
	value := config.GetEnvOrDefault(config.EnvPrefix+"ENV_FILE", "")
	if value == "" {
		return nil
	}
	var files []string
	for _, f := range strings.Split(value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}

// read loads the configuration and applies the global flags. Validation is
// left to the subcommand since each needs a different part of it.
func (o *rootOptions) read() (*config.Config, error) {
	cfg, err := config.Read(o.configPath, o.envFiles...)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
