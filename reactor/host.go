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

package reactor

import (
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/pkg/frame"
)

// Engine callbacks. Everything below runs on the engine loop goroutine.

func (r *Reactor) LogMessage(level api.LogLevel, message string) {
	r.sink.LogMessage(level, message)
}

// WriteReady pops providers by priority until one builds a frame. Providers
// asking to be kept are queued again afterwards.
func (r *Reactor) WriteReady() *frame.Buffer {
	var keep []FrameProvider
	defer func() {
		for _, p := range keep {
			if _, err := r.providers.push(p, false); err != nil {
				r.log.Debug("frame provider dropped", zap.Error(err))
			}
		}
	}()

	for {
		p, ok := r.providers.pop()
		if !ok {
			return nil
		}
		buf, more, err := p.BuildFrame(r)
		if more {
			keep = append(keep, p)
		}
		if err != nil {
			r.log.Error("build frame", zap.Error(err))
			continue
		}
		if buf == nil {
			continue
		}
		if err := buf.Flip(); err != nil {
			r.log.Error("flip outgoing frame", zap.Error(err))
			continue
		}
		r.traffic()
		return buf
	}
}

func (r *Reactor) ReadReady() *frame.Buffer {
	buf, err := r.pool.Borrow()
	if err != nil {
		r.log.Error("no frame for reading", zap.Error(err))
		return nil
	}
	return buf
}

func (r *Reactor) FrameReceived(buf *frame.Buffer, length int) {
	r.log.Debug("frame received", zap.Int("length", length))
	r.traffic()
	if r.dispatch(buf) {
		r.giveBack(buf)
	}
}

func (r *Reactor) FrameReturn(buf *frame.Buffer) {
	r.giveBack(buf)
}

func (r *Reactor) WorkerRequest(worker api.WorkerID) {
	r.log.Debug("worker request", zap.Stringer("worker", worker))
	switch worker {
	case api.WorkerKeypair:
		if err := r.bridge.DispatchKeypair(); err != nil {
			r.log.Error("keypair worker", zap.Error(err))
		}
	case api.WorkerCSR:
		r.mu.Lock()
		csr := r.defaultCSR
		r.mu.Unlock()
		var names []string
		if csr != nil {
			names = csr.Strings()
		}
		if err := r.bridge.DispatchCSR(names); err != nil {
			r.log.Error("csr worker", zap.Error(err))
		}
		r.events.Broadcast(Event{Type: EventCSRNeeded})
	default:
		r.log.Error("unknown worker requested", zap.Stringer("worker", worker))
	}
}

// Heartbeat trims the frame pool and schedules the next beat. The interval
// grows while the connection is idle.
func (r *Reactor) Heartbeat(now float64) float64 {
	r.beats.Beat()
	r.pool.HeartBeat(now)

	r.hbMu.Lock()
	next := r.hb.NextBackOff()
	r.hbMu.Unlock()
	if next == backoff.Stop {
		next = r.conf.Heartbeat.Max
	}
	return now + next.Seconds()
}

func (r *Reactor) LoopStarted() {
	r.log.Debug("engine loop started")
	r.beats.Beat()
	r.loopOnce.Do(func() { close(r.loopStarted) })
	r.events.Broadcast(Event{Type: EventLoopStarted})
}

func (r *Reactor) ConnectionReset() {
	r.log.Debug("gateway connection reset")
	r.events.Broadcast(Event{Type: EventReset})
}

func (r *Reactor) ConnectionEstablished() {
	r.log.Debug("gateway connection established")
	r.events.Broadcast(Event{Type: EventConnected})
}

// StateChanged broadcasts the transition, applies the proxy when the engine
// starts connecting and updates readiness.
func (r *Reactor) StateChanged(state string) {
	r.mu.Lock()
	prev := r.lastState
	r.lastState = state
	r.mu.Unlock()

	r.log.Debug("state changed", zap.String("state", state), zap.String("translated", TranslateState(state)))
	r.events.Broadcast(Event{Type: EventStateChanged, State: state, PrevState: prev})

	if connecting(state) && !connecting(prev) {
		r.configureProxy()
	}
	r.setReady(Ready(state))
}

func (r *Reactor) ClientIDChanged(clientID, clientTag string) {
	r.log.Debug("client identity changed", zap.String("client_id", clientID), zap.String("client_tag", clientTag))
	r.mu.Lock()
	r.clientID = clientID
	r.clientTag = clientTag
	r.mu.Unlock()
	r.events.Broadcast(Event{Type: EventClientIDChanged, ClientID: clientID, ClientTag: clientTag})
}
