/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gwbridge"

type metrics struct {
	handoffs        *prometheus.CounterVec
	violations      *prometheus.CounterVec
	occupied        *prometheus.GaugeVec
	hooks           *prometheus.CounterVec
	heartbeatClamps prometheus.Counter
	workerJobs      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "handoff",
			Name:      "frames_total",
			Help:      "Frames handed to the engine and how they came back.",
		}, []string{"slot", "outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "handoff",
			Name:      "violations_total",
			Help:      "Handoff protocol violations by kind.",
		}, []string{"kind"}),
		occupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "handoff",
			Name:      "slot_occupied",
			Help:      "1 while the slot holds a buffer lent to the engine.",
		}, []string{"slot"}),
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hooks",
			Name:      "invocations_total",
			Help:      "Engine hook invocations.",
		}, []string{"hook"}),
		heartbeatClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hooks",
			Name:      "heartbeat_clamps_total",
			Help:      "Heartbeat deadlines that were non-positive or in the past.",
		}),
		workerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Worker jobs run by the dispatch pool.",
		}, []string{"worker", "result"}),
	}
	for _, c := range []prometheus.Collector{m.handoffs, m.violations, m.occupied, m.hooks, m.heartbeatClamps, m.workerJobs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("gwbridge: register metrics: %w", err)
		}
	}
	return m, nil
}
