package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTradeIndexed(time.Now(), time.Now())
		m.RecordEventDropped(DropQueueFull)
		m.RecordRPCCall("getTransaction", time.Second, 2, errors.New("x"))
		m.RecordTaskRun("reconcile", "ok", time.Second)
	})
}

func TestMetrics_Names(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")

	m.RecordTradeIndexed(time.Now().Add(-2*time.Second), time.Now())
	m.RecordEventDropped(DropQueueFull)
	m.RecordEventDropped(DropQueueFull)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesIndexed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ListenerEventsDropped.WithLabelValues(DropQueueFull)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ledger_trades_indexed_total"])
	assert.True(t, names["ledger_indexing_lag_seconds"])
	assert.True(t, names["ledger_listener_events_dropped_total"])
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")
	m.RecordPositionSynced()

	var healthy atomic.Bool
	healthy.Store(true)
	router := NewRouter(reg, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error {
			if !healthy.Load() {
				return errors.New("down")
			}
			return nil
		},
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ledger_writer_positions_synced_total 1")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "down")
}
