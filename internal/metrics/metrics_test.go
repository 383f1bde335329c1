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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runpd/runpd/internal/metrics"
)

func TestOpenConnectionsTracksAcceptAndClose(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.Accepted()
	m.Accepted()
	if got := m.OpenConnections(); got != 2 {
		t.Fatalf("open connections = %v, want 2", got)
	}

	m.Closed()
	if got := m.OpenConnections(); got != 1 {
		t.Fatalf("open connections = %v, want 1", got)
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *metrics.Metrics

	m.Accepted()
	m.Closed()
	m.Spawned()
	m.SpawnFailed()
	m.Reaped()

	if got := m.OpenConnections(); got != 0 {
		t.Fatalf("open connections on nil = %v, want 0", got)
	}
}
