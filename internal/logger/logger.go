// Package logger builds the process zap logger with optional Sentry forwarding.
package logger

import (
	"fmt"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	Debug bool
	// Level overrides the default level (info, or debug when Debug is set).
	Level string

	SentryDSN         string
	SentryEnvironment string
	// SentryClient is used instead of building one from SentryDSN.
	SentryClient    *sentry.Client
	BreadcrumbLevel zapcore.Level
	Tags            map[string]string
}

// Logger bundles the zap logger with the Sentry client backing it, if any.
type Logger struct {
	*zap.Logger
	Sentry *sentry.Client
}

// New builds a logger. Error-level entries are forwarded to Sentry when a DSN
// or client is configured.
func New(cfg Config) (*Logger, error) {
	var zapConfig zap.Config
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	}

	base, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	client := cfg.SentryClient
	if client == nil && cfg.SentryDSN != "" {
		client, err = sentry.NewClient(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Debug:       cfg.Debug,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry client: %w", err)
		}
	}
	if client == nil {
		return &Logger{Logger: base}, nil
	}

	breadcrumbLevel := cfg.BreadcrumbLevel
	if breadcrumbLevel == zapcore.InvalidLevel {
		breadcrumbLevel = zapcore.InfoLevel
	}
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   breadcrumbLevel,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, fmt.Errorf("sentry core: %w", err)
	}

	return &Logger{Logger: zapsentry.AttachCoreToLogger(core, base), Sentry: client}, nil
}

// Flush syncs the zap logger and waits for buffered Sentry events.
func (l *Logger) Flush(timeout time.Duration) {
	_ = l.Sync()
	if l.Sentry != nil {
		l.Sentry.Flush(timeout)
	}
}
