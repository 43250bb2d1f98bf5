// Package alerting delivers operator alerts raised by reconciliation.
package alerting

import (
	"context"
	"sync"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"market-ledger/internal/observability"
)

// Sink accepts alerts. Delivery is best-effort and never fails the caller.
type Sink interface {
	SendAlert(ctx context.Context, title, message string)
}

// LogSink writes alerts to the logger at warn level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("alert")}
}

// SendAlert logs the alert.
func (s *LogSink) SendAlert(_ context.Context, title, message string) {
	s.logger.Warn(message, zap.String("alert", title))
}

// SentrySink reports alerts as Sentry warning events tagged with the title.
type SentrySink struct {
	client *sentry.Client
	logger *zap.Logger
}

// NewSentrySink creates a SentrySink.
func NewSentrySink(client *sentry.Client, logger *zap.Logger) *SentrySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentrySink{client: client, logger: logger.Named("alert")}
}

// SendAlert captures the alert. A hub on ctx contributes its scope.
func (s *SentrySink) SendAlert(ctx context.Context, title, message string) {
	event := sentry.NewEvent()
	event.Level = sentry.LevelWarning
	event.Message = message
	event.Tags["alert"] = title
	event.Fingerprint = []string{"alert", title}

	var scope sentry.EventModifier
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		scope = hub.Scope()
	}
	if id := s.client.CaptureEvent(event, nil, scope); id == nil {
		s.logger.Debug("alert not sent to sentry", zap.String("alert", title))
	}
}

// Multi fans an alert out to several sinks and counts it once.
type Multi struct {
	sinks   []Sink
	metrics *observability.Metrics
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(metrics *observability.Metrics, sinks ...Sink) *Multi {
	m := &Multi{metrics: metrics}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// SendAlert delivers to every sink.
func (m *Multi) SendAlert(ctx context.Context, title, message string) {
	m.metrics.RecordAlert(title)
	for _, s := range m.sinks {
		s.SendAlert(ctx, title, message)
	}
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Alert is one recorded alert.
type Alert struct {
	Title   string
	Message string
}

// SendAlert records the alert.
func (r *Recorder) SendAlert(_ context.Context, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, Alert{Title: title, Message: message})
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*SentrySink)(nil)
	_ Sink = (*Multi)(nil)
	_ Sink = (*Recorder)(nil)
)
