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
	"github.com/srediag/gwbridge/api"
)

var _ api.Callbacks = (*Bridge)(nil)

// Heartbeat asks the host for the next heartbeat deadline. A non-positive
// or past-due answer is clamped to now.
func (b *Bridge) Heartbeat(now float64) float64 {
	next := b.host.Heartbeat(now)
	return b.clampDeadline(now, next)
}

func (b *Bridge) clampDeadline(now, next float64) float64 {
	// !(next >= now) also catches NaN
	if next <= 0 || !(next >= now) {
		b.metrics.heartbeatClamps.Inc()
		b.log.warnf("heartbeat returned %v at %v, clamped to now", next, now)
		return now
	}
	return next
}

// WorkerRequest forwards the engine's request for an asynchronous job.
func (b *Bridge) WorkerRequest(worker byte) {
	id, ok := api.ParseWorkerID(worker)
	if !ok {
		b.log.errorf("unknown worker requested %q", worker)
		b.host.LogMessage(api.LogError, "unknown worker requested: "+string(rune(worker)))
		return
	}
	b.log.debugf("worker request %s", id)
	b.host.WorkerRequest(id)
}

// Log forwards an engine log line to the host log channel.
func (b *Bridge) Log(lv api.LogLevel, message string) {
	switch lv {
	case api.LogDebug, api.LogInfo, api.LogWarning, api.LogError:
	default:
		lv = api.LogInfo
	}
	b.host.LogMessage(lv, message)
}
