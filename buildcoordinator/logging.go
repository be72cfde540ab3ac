package buildcoordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/bugsnag/bugsnag-go"
	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	logrus_bugsnag "github.com/Shopify/logrus-bugsnag"
	"github.com/sirupsen/logrus"

	"github.com/distribution/wheelcore/wcontext"
)

const defaultLogFormatter = "text"

// ConfigureLogging prepares ctx with a logger built from cfg.Log: set
// the level and formatter on the shared logrus logger, attach any
// static fields to ctx, and register it as the package default so code
// that never receives ctx (init-time registrations, panic recovery at
// the top of the stack) still logs consistently.
func ConfigureLogging(ctx context.Context, cfg *Config) (context.Context, error) {
	level, err := logrus.ParseLevel(string(cfg.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
		logrus.Warnf("buildcoordinator: invalid log level %q, using %q", cfg.Log.Level, level)
	}
	logrus.SetLevel(level)

	formatter := cfg.Log.Formatter
	if formatter == "" {
		formatter = defaultLogFormatter
	}
	switch formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339Nano})
	case "logstash":
		logrus.SetFormatter(&logstash.LogstashFormatter{
			Formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano},
		})
	default:
		return ctx, fmt.Errorf("buildcoordinator: unsupported logging formatter %q", formatter)
	}

	if cfg.Log.Bugsnag != nil && cfg.Log.Bugsnag.APIKey != "" {
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:       cfg.Log.Bugsnag.APIKey,
			ReleaseStage: cfg.Log.Bugsnag.ReleaseStage,
			Endpoint:     cfg.Log.Bugsnag.Endpoint,
		})
		hook, err := logrus_bugsnag.NewBugsnagHook()
		if err != nil {
			return ctx, fmt.Errorf("buildcoordinator: configuring bugsnag hook: %w", err)
		}
		logrus.AddHook(hook)
	}

	if len(cfg.Log.Fields) > 0 {
		fields := make(map[any]any, len(cfg.Log.Fields))
		var keys []any
		for k, v := range cfg.Log.Fields {
			fields[k] = v
			keys = append(keys, k)
		}
		ctx = wcontext.WithValues(ctx, fields)
		ctx = wcontext.WithLogger(ctx, wcontext.GetLogger(ctx, keys...))
	}

	wcontext.SetDefaultLogger(wcontext.GetLogger(ctx))
	return ctx, nil
}
