// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exports Prometheus metrics for a running grbl.Driver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xykasumi/grbld/internal/grbl"
)

// Metrics holds the Prometheus collectors for one driver connection. All
// methods are nil-safe: calls on a nil *Metrics are no-ops, so callers that
// run without a registered metrics server can pass a nil pointer around
// instead of branching on whether metrics are enabled.
type Metrics struct {
	rxBufferPercent prometheus.Gauge
	feedCurrent     prometheus.Gauge
	connected       prometheus.Gauge

	linesSentTotal      prometheus.Counter
	linesProcessedTotal prometheus.Counter
	errorsTotal         *prometheus.CounterVec
	alarmsTotal         *prometheus.CounterVec
	jobsCompletedTotal  prometheus.Counter
	bootsTotal          prometheus.Counter
}

// New creates and registers driver metrics with reg. If reg is nil, the
// collectors are created but not registered, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rxBufferPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grbld",
			Name:      "rx_buffer_fill_percent",
			Help:      "Fill percentage of the firmware's serial receive buffer",
		}),
		feedCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grbld",
			Name:      "feed_current",
			Help:      "Current feed rate reported by the last status report",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grbld",
			Name:      "connected",
			Help:      "1 if the driver has an open serial connection, 0 otherwise",
		}),
		linesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "lines_sent_total",
			Help:      "Total number of G-code lines written to the controller",
		}),
		linesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "lines_processed_total",
			Help:      "Total number of lines acknowledged (ok or error) by the controller",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "errors_total",
			Help:      "Total number of error: responses from the controller, labeled by code",
		}, []string{"code"}),
		alarmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "alarms_total",
			Help:      "Total number of ALARM: responses from the controller, labeled by code",
		}, []string{"code"}),
		jobsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "jobs_completed_total",
			Help:      "Total number of streamed jobs that drained to completion",
		}),
		bootsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grbld",
			Name:      "controller_boots_total",
			Help:      "Total number of Grbl boot banners observed (power cycles, resets)",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.rxBufferPercent,
			m.feedCurrent,
			m.connected,
			m.linesSentTotal,
			m.linesProcessedTotal,
			m.errorsTotal,
			m.alarmsTotal,
			m.jobsCompletedTotal,
			m.bootsTotal,
		)
	}
	return m
}

// Observe updates the relevant collector for one dispatched driver event.
// Wire this into the composite grbl.Handler alongside store recording and
// jobsched.NotifyEvent.
func (m *Metrics) Observe(ev grbl.Event) {
	if m == nil {
		return
	}
	switch e := ev.(type) {
	case grbl.BootEvent:
		m.connected.Set(1)
		m.bootsTotal.Inc()
	case grbl.DisconnectedEvent:
		m.connected.Set(0)
	case grbl.RxBufferPercentEvent:
		m.rxBufferPercent.Set(float64(e.Percent))
	case grbl.FeedChangeEvent:
		m.feedCurrent.Set(e.Feed)
	case grbl.LineSentEvent:
		m.linesSentTotal.Inc()
	case grbl.ProcessedCommandEvent:
		m.linesProcessedTotal.Inc()
	case grbl.ErrorEvent:
		m.linesProcessedTotal.Inc()
		m.errorsTotal.WithLabelValues(e.Code).Inc()
	case grbl.AlarmEvent:
		m.alarmsTotal.WithLabelValues(e.Code).Inc()
	case grbl.JobCompletedEvent:
		m.jobsCompletedTotal.Inc()
	}
}
