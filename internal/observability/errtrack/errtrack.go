// Package errtrack reports unrecoverable errors to Sentry.
package errtrack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/pendergraft/permitclaim/internal/config"
)

// Reporter sends errors to Sentry. A Reporter without a DSN only logs.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// New creates a reporter. An empty DSN yields a log-only reporter.
func New(cfg config.SentryConfig, release string, logger *slog.Logger) (*Reporter, error) {
	return newReporter(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
		SampleRate:  cfg.SampleRate,
	}, logger)
}

func newReporter(opts sentry.ClientOptions, logger *slog.Logger) (*Reporter, error) {
	if opts.Dsn == "" {
		return &Reporter{logger: logger}, nil
	}
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("initializing sentry: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), logger: logger}, nil
}

// Enabled reports whether errors are sent to Sentry.
func (r *Reporter) Enabled() bool {
	return r.hub != nil
}

// Report captures err with the given tags.
func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.logger.Error("unrecoverable error", "error", err, "tags", tags)
	if r.hub == nil {
		return
	}

	hub := r.hub
	if ctxHub := sentry.GetHubFromContext(ctx); ctxHub != nil && ctxHub.Client() != nil {
		hub = ctxHub
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := hub.CaptureException(err); id != nil {
			r.logger.Debug("error reported", "event_id", string(*id))
		}
	})
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
