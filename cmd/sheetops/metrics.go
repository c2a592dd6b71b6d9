package main

import (
	"strings"

	"sheetops/internal/metrics"
	"sheetops/internal/metrics/datadog"
	"sheetops/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns its flush.
// Backend failures are logged and leave metrics disabled.
func (a *app) setupMetrics() func() {
	cfg := a.cfg.Metrics
	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		a.log.Debug("metrics: disabled")
		return func() {}
	case "prompush":
		var pb *prompush.Backend
		pb, err = prompush.NewBackend(a.cfg.Job, cfg.PushgatewayURL)
		if err == nil {
			b = pb
		}
	case "datadog":
		var db *datadog.Backend
		db, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			Namespace:  "sheetops.",
			GlobalTags: []string{"job:" + a.cfg.Job},
		})
		if err == nil {
			b = db
		}
	default:
		a.log.Warn("metrics: unknown backend; metrics disabled", "backend", cfg.Backend)
		return func() {}
	}
	if err != nil {
		a.log.Warn("metrics: init failed; metrics disabled", "backend", cfg.Backend, "err", err)
		return func() {}
	}

	a.log.Info("metrics: enabled", "backend", cfg.Backend, "job", a.cfg.Job)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			a.log.Warn("metrics: flush", "err", err)
		}
		metrics.Reset()
	}
}
