/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the daemon's Prometheus instrumentation: how
// many connections were accepted, how many processes were spawned or
// failed to spawn, how many were reaped, and how many connections are
// currently open, mirroring the accessor an embedder would otherwise
// reach for on the listener itself (OpenConnections()).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the full set of counters/gauges this daemon publishes. A
// nil *Metrics is valid everywhere it is accepted; every method becomes
// a no-op, so callers that don't care about metrics don't need a stub.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	processesSpawned    prometheus.Counter
	spawnFailures       prometheus.Counter
	processesReaped     prometheus.Counter
	openConnections     prometheus.Gauge
}

// New registers and returns the daemon's metrics against reg. Passing
// prometheus.NewRegistry() keeps tests hermetic; passing
// prometheus.DefaultRegisterer wires it into the process-wide /metrics
// endpoint.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runpd",
			Name:      "connections_accepted_total",
			Help:      "Total number of connections accepted on the control socket.",
		}),
		processesSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runpd",
			Name:      "processes_spawned_total",
			Help:      "Total number of processes successfully spawned.",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runpd",
			Name:      "spawn_failures_total",
			Help:      "Total number of exec requests that failed to spawn.",
		}),
		processesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runpd",
			Name:      "processes_reaped_total",
			Help:      "Total number of spawned processes that have been reaped.",
		}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "runpd",
			Name:      "open_connections",
			Help:      "Number of connections currently being served.",
		}),
	}

	reg.MustRegister(
		m.connectionsAccepted,
		m.processesSpawned,
		m.spawnFailures,
		m.processesReaped,
		m.openConnections,
	)

	return m
}

// Accepted records one newly accepted connection.
func (m *Metrics) Accepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
	m.openConnections.Inc()
}

// Closed records one connection reaching its terminal state.
func (m *Metrics) Closed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

// Spawned records one successful spawn.
func (m *Metrics) Spawned() {
	if m == nil {
		return
	}
	m.processesSpawned.Inc()
}

// SpawnFailed records one exec request that failed to spawn.
func (m *Metrics) SpawnFailed() {
	if m == nil {
		return
	}
	m.spawnFailures.Inc()
}

// Reaped records one spawned process reaching a terminal wait status.
func (m *Metrics) Reaped() {
	if m == nil {
		return
	}
	m.processesReaped.Inc()
}

// OpenConnections returns the current value of the open-connections
// gauge, mirroring socket/server/unixgram's OpenConnections() accessor.
func (m *Metrics) OpenConnections() float64 {
	if m == nil {
		return 0
	}

	var out dto.Metric
	if err := m.openConnections.Write(&out); err != nil {
		return 0
	}
	return out.GetGauge().GetValue()
}
