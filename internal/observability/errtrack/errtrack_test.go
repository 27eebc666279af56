package errtrack

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/permitclaim/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_WithoutDSN(t *testing.T) {
	r, err := New(config.SentryConfig{}, "test", discardLogger())
	require.NoError(t, err)

	assert.False(t, r.Enabled())
	assert.NotPanics(t, func() {
		r.Report(context.Background(), errors.New("boom"), map[string]string{"nonce": "1"})
	})
	assert.True(t, r.Flush(0))
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(config.SentryConfig{DSN: "not a dsn"}, "test", discardLogger())
	assert.Error(t, err)
}

func TestReport_CapturesTags(t *testing.T) {
	var mu sync.Mutex
	var events []*sentry.Event

	r, err := newReporter(sentry.ClientOptions{
		Dsn: "https://public@sentry.example/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	}, discardLogger())
	require.NoError(t, err)
	require.True(t, r.Enabled())

	r.Report(context.Background(), errors.New("persisting tx hash"), map[string]string{"nonce": "300", "operation": "claim"})
	r.Report(context.Background(), nil, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "300", events[0].Tags["nonce"])
	assert.Equal(t, "claim", events[0].Tags["operation"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "persisting tx hash", events[0].Exception[0].Value)
}
