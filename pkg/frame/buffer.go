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

// Package frame provides the reusable byte region handed between the native
// engine and the host for exactly one write or read operation.
//
// A Buffer starts in write mode (position 0, limit == capacity). Flip puts it
// into read mode. While a Buffer is lent to the engine every mutator fails
// with ErrLent.
package frame

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrLent is returned by mutators while the engine holds a view of the buffer.
	ErrLent = errors.New("frame: buffer is lent to the engine")
	// ErrNotLent is returned by Release on a buffer that is not lent.
	ErrNotLent = errors.New("frame: buffer is not lent")
	// ErrBounds is returned when a cursor update would break 0 <= position <= limit <= capacity.
	ErrBounds = errors.New("frame: cursor out of bounds")
	// ErrNotEnoughData is returned by Read and Peek when fewer bytes remain than requested.
	ErrNotEnoughData = errors.New("frame: not enough data")
	// ErrNoSpace is returned by Reserve when the remaining region is too small.
	ErrNoSpace = errors.New("frame: not enough space")
)

// Buffer is a contiguous byte region with position/limit/capacity cursors.
//
// Buffer is not safe for concurrent use. Ownership is exclusive: either the
// host or the engine works on it, never both.
type Buffer struct {
	data     []byte
	position int
	limit    int

	lent       bool
	generation uint64
}

// New allocates a Buffer of the given capacity in write mode.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity), limit: capacity}
}

// Wrap creates a Buffer over data without copying it.
func Wrap(data []byte, position, limit int) (*Buffer, error) {
	if position < 0 || position > limit || limit > len(data) {
		return nil, fmt.Errorf("%w: position=%d limit=%d capacity=%d", ErrBounds, position, limit, len(data))
	}
	return &Buffer{data: data, position: position, limit: limit}, nil
}

func (b *Buffer) Position() int { return b.position }

func (b *Buffer) Limit() int { return b.limit }

func (b *Buffer) Capacity() int { return len(b.data) }

// Remaining returns limit - position.
func (b *Buffer) Remaining() int { return b.limit - b.position }

// Bytes returns the whole backing storage.
func (b *Buffer) Bytes() []byte { return b.data }

// Lent reports whether the engine currently holds a view of the buffer.
func (b *Buffer) Lent() bool { return b.lent }

// Generation is bumped on every Release. A view obtained from Lend is valid
// only while the generation it was issued under is current.
func (b *Buffer) Generation() uint64 { return b.generation }

// Storage returns the address of the first byte of the backing storage, or
// nil for an empty buffer. Two live buffers never share an address.
func (b *Buffer) Storage() unsafe.Pointer {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b.data))
}

// View exposes data[position:limit] without transferring ownership.
func (b *Buffer) View() []byte {
	return b.data[b.position:b.limit]
}

// Lend marks the buffer as held by the engine and returns data[position:end].
// end must lie between position and capacity.
func (b *Buffer) Lend(end int) ([]byte, error) {
	if b.lent {
		return nil, ErrLent
	}
	if end < b.position || end > len(b.data) {
		return nil, fmt.Errorf("%w: lend end=%d position=%d capacity=%d", ErrBounds, end, b.position, len(b.data))
	}
	b.lent = true
	return b.data[b.position:end:end], nil
}

// Release ends the loan started by Lend. Views handed out before the release
// must not be dereferenced afterwards.
func (b *Buffer) Release() error {
	if !b.lent {
		return ErrNotLent
	}
	b.lent = false
	b.generation++
	return nil
}

func (b *Buffer) SetPosition(p int) error {
	if b.lent {
		return ErrLent
	}
	if p < 0 || p > b.limit {
		return fmt.Errorf("%w: position=%d limit=%d", ErrBounds, p, b.limit)
	}
	b.position = p
	return nil
}

func (b *Buffer) SetLimit(l int) error {
	if b.lent {
		return ErrLent
	}
	if l < b.position || l > len(b.data) {
		return fmt.Errorf("%w: limit=%d position=%d capacity=%d", ErrBounds, l, b.position, len(b.data))
	}
	b.limit = l
	return nil
}

// Flip switches from write mode to read mode: limit = position, position = 0.
func (b *Buffer) Flip() error {
	if b.lent {
		return ErrLent
	}
	b.limit = b.position
	b.position = 0
	return nil
}

// Reset puts the buffer back into write mode over the full capacity.
func (b *Buffer) Reset() error {
	if b.lent {
		return ErrLent
	}
	b.position = 0
	b.limit = len(b.data)
	return nil
}

// Write copies p at position, bounded by limit, and advances position.
// It returns ErrNoSpace together with the short count if p did not fit.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.lent {
		return 0, ErrLent
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(b.data[b.position:b.limit], p)
	b.position += n
	if n < len(p) {
		return n, ErrNoSpace
	}
	return n, nil
}

// Reserve advances position by size and returns the skipped region for the
// caller to fill in place.
func (b *Buffer) Reserve(size int) ([]byte, error) {
	if b.lent {
		return nil, ErrLent
	}
	if size < 0 || b.Remaining() < size {
		return nil, ErrNoSpace
	}
	start := b.position
	b.position += size
	return b.data[start:b.position], nil
}

// Read returns up to size bytes from position and advances past them.
func (b *Buffer) Read(size int) (data []byte, err error) {
	if b.lent {
		return nil, ErrLent
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: read size=%d", ErrBounds, size)
	}
	unRead := b.Remaining()
	if unRead < size {
		size = unRead
		err = ErrNotEnoughData
	}
	data = b.data[b.position : b.position+size]
	b.position += size
	return
}

// Peek is Read without advancing position.
func (b *Buffer) Peek(size int) (data []byte, err error) {
	origin := b.position
	data, err = b.Read(size)
	b.position = origin
	return
}

// Skip advances position by up to size bytes and returns how many were
// skipped. A negative size skips nothing.
func (b *Buffer) Skip(size int) int {
	if b.lent || size <= 0 {
		return 0
	}
	unRead := b.Remaining()
	if unRead > size {
		b.position += size
		return size
	}
	b.position += unRead
	return unRead
}

// Byte returns the byte at absolute index i.
func (b *Buffer) Byte(i int) (byte, error) {
	if i < 0 || i >= len(b.data) {
		return 0, ErrBounds
	}
	return b.data[i], nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("frame.Buffer{position:%d limit:%d capacity:%d lent:%t}", b.position, b.limit, len(b.data), b.lent)
}
