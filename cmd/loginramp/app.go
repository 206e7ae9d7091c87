package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/config"
	"github.com/FairForge/loginramp/internal/driver/httplogin"
	"github.com/FairForge/loginramp/internal/history"
	"github.com/FairForge/loginramp/internal/preflight"
	"github.com/FairForge/loginramp/internal/reporting"
)

// openHistory returns the configured store, or nil when history is off.
func openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (history.Store, error) {
	switch cfg.History.Driver {
	case config.HistoryNone:
		return nil, nil
	case config.HistoryPostgres:
		store, err := history.NewPostgresStore(cfg.History.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("history: connect: %w", err)
		}
		if err := store.CreateTables(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := history.NewFileStore(cfg.History.Dir, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func reportSinks(ctx context.Context, cfg *config.Config) ([]reporting.Sink, error) {
	sinks := []reporting.Sink{reporting.DirSink{Dir: cfg.Report.Dir}}
	if cfg.Report.S3.Enabled() {
		s3cfg := cfg.Report.S3
		sink, err := reporting.NewS3SinkFromConfig(ctx, reporting.S3Config{
			Bucket:    s3cfg.Bucket,
			Prefix:    s3cfg.Prefix,
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func newDriverFactory(cfg *config.Config, logger *zap.Logger) (*httplogin.Factory, error) {
	t := cfg.Target
	accounts := make([]httplogin.Credential, 0, len(t.Credentials()))
	for _, a := range t.Credentials() {
		accounts = append(accounts, httplogin.Credential{Username: a.Username, Password: a.Password})
	}
	return httplogin.NewFactory(httplogin.Config{
		LoginURL:           t.LoginURL(),
		UsernameField:      t.UsernameField,
		PasswordField:      t.PasswordField,
		FormSelector:       t.FormSelector,
		ErrorSelector:      t.ErrorSelector,
		SuccessSelector:    t.SuccessSelector,
		Accounts:           accounts,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}, logger)
}

func newChecker(cfg *config.Config, logger *zap.Logger) *preflight.Checker {
	return preflight.NewChecker(preflight.Config{
		Timeout:            cfg.Ramp.SessionTimeout,
		InsecureSkipVerify: cfg.Target.InsecureSkipVerify,
	}, logger)
}
