/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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

import (
	"errors"
	"fmt"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

const defaultQueueCap = 256

type commandKind uint8

const (
	cmdYield commandKind = iota + 1
	cmdInbound
	cmdKeypairDone
	cmdCSRDone
)

type command struct {
	kind commandKind
	code byte
	data []byte
}

// commandQueue feeds the engine loop. Workers and yields running on other
// goroutines put commands; only the loop polls.
type commandQueue struct {
	q *queuepkg.Queue
}

var (
	errQueueClosed = errors.New("simengine: command queue closed")
	errQueueIdle   = errors.New("simengine: no command before deadline")
)

func newCommandQueue(hint int64) *commandQueue {
	if hint <= 0 {
		hint = defaultQueueCap
	}
	return &commandQueue{q: queuepkg.New(hint)}
}

func (q *commandQueue) put(c command) error {
	if err := q.q.Put(c); err != nil {
		if errors.Is(err, queuepkg.ErrDisposed) {
			return errQueueClosed
		}
		return err
	}
	return nil
}

// poll waits up to timeout for the next command.
func (q *commandQueue) poll(timeout time.Duration) (command, error) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	items, err := q.q.Poll(1, timeout)
	switch {
	case errors.Is(err, queuepkg.ErrTimeout):
		return command{}, errQueueIdle
	case errors.Is(err, queuepkg.ErrDisposed):
		return command{}, errQueueClosed
	case err != nil:
		return command{}, err
	case len(items) == 0:
		return command{}, errQueueIdle
	}
	c, ok := items[0].(command)
	if !ok {
		return command{}, fmt.Errorf("simengine: invalid queue element type %T", items[0])
	}
	return c, nil
}

func (q *commandQueue) size() int64 {
	return q.q.Len()
}

func (q *commandQueue) close() {
	q.q.Dispose()
}

func (q *commandQueue) closed() bool {
	return q.q.Disposed()
}
