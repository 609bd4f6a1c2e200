// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guestexec

import (
	"github.com/hashicorp/go-metrics"
)

// Metrics wraps a metrics.MetricSink (hashicorp/go-metrics) and emits the
// executor's pool and queue gauges plus dispatch/completion counters under
// the "guestexec" prefix. Pass the sink from a
// github.com/go-arcade/guestexec/pkg/metrics.Server via its GetSink method
// to expose these through Prometheus.
type Metrics struct {
	sink metrics.MetricSink
}

// NewMetrics wraps sink. A nil sink is valid and silently discards all
// measurements, matching Config.Metrics' nil-means-disabled convention.
func NewMetrics(sink metrics.MetricSink) *Metrics {
	return &Metrics{sink: sink}
}

func (m *Metrics) setPoolSize(size, max int) {
	if m == nil || m.sink == nil {
		return
	}
	m.sink.SetGauge([]string{"guestexec", "pool_size"}, float32(size))
	m.sink.SetGauge([]string{"guestexec", "pool_max"}, float32(max))
}

func (m *Metrics) setQueueDepth(depth int) {
	if m == nil || m.sink == nil {
		return
	}
	m.sink.SetGauge([]string{"guestexec", "queue_depth"}, float32(depth))
}

func (m *Metrics) recordDispatch() {
	if m == nil || m.sink == nil {
		return
	}
	m.sink.IncrCounter([]string{"guestexec", "dispatched"}, 1)
}

func (m *Metrics) recordCompletion(err error) {
	if m == nil || m.sink == nil {
		return
	}
	m.sink.IncrCounter([]string{"guestexec", "completed"}, 1)
	if err != nil {
		m.sink.IncrCounter([]string{"guestexec", "failed"}, 1)
	}
}
