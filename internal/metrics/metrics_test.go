// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xykasumi/grbld/internal/grbl"
)

func TestMetricsObserveUpdatesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(grbl.BootEvent{Version: "1.1h"})
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Fatalf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bootsTotal); got != 1 {
		t.Fatalf("bootsTotal = %v, want 1", got)
	}

	m.Observe(grbl.RxBufferPercentEvent{Percent: 42})
	if got := testutil.ToFloat64(m.rxBufferPercent); got != 42 {
		t.Fatalf("rxBufferPercent = %v, want 42", got)
	}

	m.Observe(grbl.ErrorEvent{Index: 1, Text: "G1 X1", Code: "9"})
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("9")); got != 1 {
		t.Fatalf("errorsTotal{9} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.linesProcessedTotal); got != 1 {
		t.Fatalf("linesProcessedTotal = %v, want 1", got)
	}

	m.Observe(grbl.JobCompletedEvent{})
	if got := testutil.ToFloat64(m.jobsCompletedTotal); got != 1 {
		t.Fatalf("jobsCompletedTotal = %v, want 1", got)
	}

	m.Observe(grbl.DisconnectedEvent{})
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Fatalf("connected after disconnect = %v, want 0", got)
	}
}

func TestMetricsObserveNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe(grbl.BootEvent{Version: "1.1h"})
}
