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

package simengine

import "github.com/srediag/gwbridge/api"

// Sent returns copies of the frames the engine wrote out, in order.
func (e *Engine) Sent() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.sent))
	copy(out, e.sent)
	return out
}

// Received returns the number of frames delivered through the read slot.
func (e *Engine) Received() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.received
}

func (e *Engine) Keypairs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keypairs
}

// CSRs returns the decoded entries of every CSR worker call.
func (e *Engine) CSRs() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.csrs))
	copy(out, e.csrs)
	return out
}

func (e *Engine) Proxies() [][2]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][2]string, len(e.proxies))
	copy(out, e.proxies)
	return out
}

func (e *Engine) Sockets() []SocketCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SocketCall, len(e.sockets))
	copy(out, e.sockets)
	return out
}

func (e *Engine) Characteristics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.characteristics))
	copy(out, e.characteristics)
	return out
}

func (e *Engine) Yields() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]byte, len(e.yields))
	copy(out, e.yields)
	return out
}

func (e *Engine) Heartbeats() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heartbeats
}

func (e *Engine) LogMask() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logMask
}

// Params returns what Init was called with.
func (e *Engine) Params() api.InitParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

func (e *Engine) Running() bool {
	return e.running.Load()
}

// Pending returns the number of queued commands.
func (e *Engine) Pending() int64 {
	return e.cmds.size()
}
