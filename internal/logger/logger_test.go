package logger

import (
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WithoutSentry(t *testing.T) {
	l, err := New(Config{Debug: true})
	require.NoError(t, err)
	assert.Nil(t, l.Sentry)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	l.Flush(0)
}

func TestNew_Level(t *testing.T) {
	l, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNew_ForwardsErrorsToSentry(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	l, err := New(Config{SentryClient: client, Tags: map[string]string{"service": "test"}})
	require.NoError(t, err)

	l.Info("not forwarded")
	l.Error("ledger write failed", zap.String("wallet", "w1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "ledger write failed", events[0].Message)
	assert.Equal(t, "test", events[0].Tags["service"])
}
