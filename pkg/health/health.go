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

// Package health tracks engine heartbeats for liveness probes.
package health

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"
)

var (
	// ErrStopped is reported once the monitored loop has exited.
	ErrStopped = errors.New("health: loop stopped")
	// ErrStale is reported when no heartbeat arrived within the max age.
	ErrStale = errors.New("health: heartbeat stale")
)

// Monitor records heartbeats and reports liveness. A monitor that has
// never seen a beat is considered alive.
type Monitor struct {
	maxAge  time.Duration
	last    atomic.Int64
	stopped atomic.Bool
	now     func() time.Time
}

func NewMonitor(maxAge time.Duration) *Monitor {
	return &Monitor{maxAge: maxAge, now: time.Now}
}

// Beat records a heartbeat.
func (m *Monitor) Beat() {
	m.last.Store(m.now().UnixNano())
}

// Stop marks the loop as gone. Later checks fail with ErrStopped.
func (m *Monitor) Stop() {
	m.stopped.Store(true)
}

// Last returns the time of the last beat, zero if none.
func (m *Monitor) Last() time.Time {
	n := m.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (m *Monitor) Check() error {
	if m.stopped.Load() {
		return ErrStopped
	}
	last := m.Last()
	if last.IsZero() || m.maxAge <= 0 {
		return nil
	}
	if age := m.now().Sub(last); age > m.maxAge {
		return fmt.Errorf("%w: no heartbeat for %s", ErrStale, age.Round(time.Millisecond))
	}
	return nil
}

// LivenessCheck adapts the monitor to a healthcheck handler.
func (m *Monitor) LivenessCheck() healthcheck.Check { return m.Check }
