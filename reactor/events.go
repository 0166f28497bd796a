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
	"fmt"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// EventType identifies a reactor broadcast.
type EventType int

const (
	EventLoopStarted EventType = iota + 1
	EventConnected
	EventReset
	EventStateChanged
	EventClientIDChanged
	EventCSRNeeded
)

var eventTypeNames = map[EventType]string{
	EventLoopStarted:     "evloop-started",
	EventConnected:       "gwconn-connected",
	EventReset:           "gwconn-reset",
	EventStateChanged:    "state-changed",
	EventClientIDChanged: "clientid-changed",
	EventCSRNeeded:       "csr-needed",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is delivered to every subscriber.
type Event struct {
	Type EventType
	// State and PrevState are set for EventStateChanged.
	State     string
	PrevState string
	// ClientID and ClientTag are set for EventClientIDChanged.
	ClientID  string
	ClientTag string
}

// Subscriber receives events on the engine loop goroutine and must not block.
type Subscriber func(Event)

// Dispatcher fans events out to subscribers.
type Dispatcher struct {
	subs cmap.ConcurrentMap[string, Subscriber]
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: cmap.New[Subscriber]()}
}

// Subscribe registers fn and returns the id to unsubscribe with.
func (d *Dispatcher) Subscribe(fn Subscriber) string {
	id := uuid.NewString()
	d.subs.Set(id, fn)
	return id
}

// Unsubscribe reports whether id was subscribed.
func (d *Dispatcher) Unsubscribe(id string) bool {
	_, ok := d.subs.Pop(id)
	return ok
}

func (d *Dispatcher) Len() int { return d.subs.Count() }

// Broadcast calls every subscriber once. Order is unspecified.
func (d *Dispatcher) Broadcast(ev Event) {
	for item := range d.subs.IterBuffered() {
		item.Val(ev)
	}
}
