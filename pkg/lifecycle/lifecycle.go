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

// Package lifecycle holds the session state machine shared by the bridge and
// its hosts.
package lifecycle

import (
	"fmt"
	"sync/atomic"
)

// State is a session lifecycle state.
type State int32

const (
	New State = iota
	Initialized
	Running
	Stopped
	Failed
)

var stateNames = [...]string{"new", "initialized", "running", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Stopped }

// Machine is a lock-free holder of a State. The zero value is New.
type Machine struct {
	v atomic.Int32
}

func (m *Machine) Load() State { return State(m.v.Load()) }

func (m *Machine) Store(s State) { m.v.Store(int32(s)) }

// Transition moves from one state to another and reports whether the
// machine was in from.
func (m *Machine) Transition(from, to State) bool {
	return m.v.CompareAndSwap(int32(from), int32(to))
}
