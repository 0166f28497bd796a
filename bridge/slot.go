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
	"github.com/srediag/gwbridge/pkg/frame"
)

type slotKind int

const (
	writeSlot slotKind = iota
	readSlot
)

func (k slotKind) String() string {
	if k == readSlot {
		return "read"
	}
	return "write"
}

func (k slotKind) other() slotKind {
	return 1 - k
}

// slot holds at most one buffer lent to the engine, the view handed out for
// it and the token the engine echoes back.
type slot struct {
	buf   *frame.Buffer
	view  []byte
	token api.Token
}

func (s *slot) occupied() bool {
	return s.buf != nil
}

// SlotState is a snapshot of one slot.
type SlotState struct {
	Occupied bool
	Token    api.Token
	Buffer   *frame.Buffer
	ViewLen  int
}

func (s *slot) snapshot() SlotState {
	return SlotState{
		Occupied: s.occupied(),
		Token:    s.token,
		Buffer:   s.buf,
		ViewLen:  len(s.view),
	}
}
