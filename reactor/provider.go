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
	"errors"
	"sync"

	queuepkg "github.com/Workiva/go-datastructures/queue"

	"github.com/srediag/gwbridge/pkg/frame"
)

const providerQueueHint = 16

var errProvidersClosed = errors.New("reactor: frame provider queue closed")

// FrameProvider builds outgoing frames. Providers are used as map keys and
// must be comparable, pointers in practice.
type FrameProvider interface {
	// BuildFrame returns the next frame in write mode, or nil when the
	// provider has nothing right now. keep asks to stay in the queue.
	BuildFrame(r *Reactor) (buf *frame.Buffer, keep bool, err error)
	// FrameProviderPriority orders providers; lower values go first.
	FrameProviderPriority() int
}

type providerItem struct {
	provider FrameProvider
	priority int
	seq      uint64
}

// Compare orders by priority, then by insertion.
func (i *providerItem) Compare(other queuepkg.Item) int {
	o := other.(*providerItem)
	switch {
	case i.priority < o.priority:
		return -1
	case i.priority > o.priority:
		return 1
	case i.seq < o.seq:
		return -1
	case i.seq > o.seq:
		return 1
	}
	return 0
}

// providerQueue is a priority queue of providers. Get on the underlying
// queue blocks when empty, so the length is checked under mu first.
type providerQueue struct {
	mu     sync.Mutex
	pq     *queuepkg.PriorityQueue
	queued map[FrameProvider]int
	seq    uint64
}

func newProviderQueue() *providerQueue {
	return &providerQueue{
		pq:     queuepkg.NewPriorityQueue(providerQueueHint, true),
		queued: make(map[FrameProvider]int),
	}
}

// push enqueues p. With single set, p is skipped if already queued.
func (q *providerQueue) push(p FrameProvider, single bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pq.Disposed() {
		return false, errProvidersClosed
	}
	if single && q.queued[p] > 0 {
		return false, nil
	}
	q.seq++
	if err := q.pq.Put(&providerItem{provider: p, priority: p.FrameProviderPriority(), seq: q.seq}); err != nil {
		return false, err
	}
	q.queued[p]++
	return true, nil
}

func (q *providerQueue) pop() (FrameProvider, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pq.Disposed() || q.pq.Len() == 0 {
		return nil, false
	}
	items, err := q.pq.Get(1)
	if err != nil || len(items) == 0 {
		return nil, false
	}
	p := items[0].(*providerItem).provider
	if q.queued[p]--; q.queued[p] <= 0 {
		delete(q.queued, p)
	}
	return p, true
}

func (q *providerQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

func (q *providerQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pq.Dispose()
	q.queued = make(map[FrameProvider]int)
}
