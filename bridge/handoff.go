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
	"fmt"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/pkg/frame"
)

const (
	violationReacquire    = "reacquire"
	violationReadPosition = "read_position"
	violationAlias        = "storage_alias"
	violationLent         = "buffer_lent"
	violationNoReadBuffer = "no_read_buffer"
	violationFrameLength  = "frame_length"
	violationUnknownFrame = "unknown_frame"
)

// WriteReady asks the host for the next outgoing frame and lends its
// [position, limit) region to the engine.
func (b *Bridge) WriteReady() (api.Token, []byte) {
	if tok, busy := b.slotToken(writeSlot); busy {
		b.violation(violationReacquire, true, "write-ready while the write slot still holds token %d", tok)
		return api.NoToken, nil
	}
	buf := b.host.WriteReady()
	if buf == nil {
		return api.NoToken, nil
	}
	return b.lend(writeSlot, buf, buf.Limit())
}

// ReadReady asks the host for an empty buffer and lends [0, capacity) to
// the engine for assembling an incoming frame.
func (b *Bridge) ReadReady() (api.Token, []byte) {
	if tok, busy := b.slotToken(readSlot); busy {
		b.violation(violationReacquire, true, "read-ready while the read slot still holds token %d", tok)
		return api.NoToken, nil
	}
	buf := b.host.ReadReady()
	if buf == nil {
		return api.NoToken, nil
	}
	if buf.Position() != 0 {
		b.violation(violationReadPosition, true, "read buffer starts at position %d", buf.Position())
		if !buf.Lent() {
			b.host.FrameReturn(buf)
		}
		return api.NoToken, nil
	}
	return b.lend(readSlot, buf, buf.Capacity())
}

func (b *Bridge) slotToken(kind slotKind) (api.Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.slots[kind]
	return s.token, s.occupied()
}

func (b *Bridge) lend(kind slotKind, buf *frame.Buffer, end int) (api.Token, []byte) {
	b.mu.Lock()
	if b.slots[kind].occupied() {
		tok := b.slots[kind].token
		b.mu.Unlock()
		b.violation(violationReacquire, true, "%s slot taken by token %d while the host was asked", kind, tok)
		return api.NoToken, nil
	}
	other := &b.slots[kind.other()]
	if other.occupied() && (other.buf == buf || (buf.Storage() != nil && other.buf.Storage() == buf.Storage())) {
		tok := other.token
		b.mu.Unlock()
		b.violation(violationAlias, true, "%s buffer shares storage with %s token %d", kind, kind.other(), tok)
		return api.NoToken, nil
	}
	view, err := buf.Lend(end)
	if err != nil {
		b.mu.Unlock()
		b.violation(violationLent, true, "%s buffer refused: %v", kind, err)
		return api.NoToken, nil
	}
	b.lastToken++
	tok := b.lastToken
	b.slots[kind] = slot{buf: buf, view: view, token: tok}
	b.mu.Unlock()

	b.metrics.occupied.WithLabelValues(kind.String()).Set(1)
	b.log.tracef("%s slot lent token %d, %d bytes", kind, tok, len(view))
	return tok, view
}

// FrameReceived passes the read buffer holding a complete frame of length
// bytes to the host. The buffer is flipped to read mode and belongs to the
// host from here on. tok is not matched: a received frame always refers to
// the current read slot.
func (b *Bridge) FrameReceived(tok api.Token, length int) {
	b.mu.Lock()
	s := b.slots[readSlot]
	if !s.occupied() {
		b.mu.Unlock()
		b.violation(violationNoReadBuffer, true, "frame-received (token %d, %d bytes) without a read buffer", tok, length)
		return
	}
	b.slots[readSlot] = slot{}
	b.mu.Unlock()
	b.metrics.occupied.WithLabelValues(readSlot.String()).Set(0)

	if tok != s.token {
		b.log.debugf("frame-received with token %d, read slot held %d", tok, s.token)
	}
	if length < 0 || length > len(s.view) {
		b.violation(violationFrameLength, false, "frame-received length %d outside read region of %d bytes", length, len(s.view))
		length = clamp(length, 0, len(s.view))
	}
	_ = s.buf.Release()
	start := s.buf.Position()
	_ = s.buf.SetLimit(s.buf.Capacity())
	_ = s.buf.SetPosition(start + length)
	_ = s.buf.Flip()

	b.metrics.handoffs.WithLabelValues(readSlot.String(), "delivered").Inc()
	b.host.FrameReceived(s.buf, length)
}

// FrameReturn hands a lent buffer back to the host. The token is matched
// against the read slot first, then the write slot; an unknown token is
// reported and changes nothing.
func (b *Bridge) FrameReturn(tok api.Token) {
	b.mu.Lock()
	kind := writeSlot
	switch {
	case tok != api.NoToken && b.slots[readSlot].occupied() && b.slots[readSlot].token == tok:
		kind = readSlot
	case tok != api.NoToken && b.slots[writeSlot].occupied() && b.slots[writeSlot].token == tok:
		kind = writeSlot
	default:
		b.mu.Unlock()
		b.violation(violationUnknownFrame, false, "unknown frame returned, token %d", tok)
		return
	}
	s := b.slots[kind]
	b.slots[kind] = slot{}
	b.mu.Unlock()

	b.metrics.occupied.WithLabelValues(kind.String()).Set(0)
	_ = s.buf.Release()
	b.metrics.handoffs.WithLabelValues(kind.String(), "returned").Inc()
	b.host.FrameReturn(s.buf)
}

// drain releases whatever is still lent once the engine loop has stopped.
func (b *Bridge) drain() {
	b.mu.Lock()
	slots := b.slots
	b.slots = [2]slot{}
	b.mu.Unlock()

	for kind := range slots {
		s := slots[kind]
		if !s.occupied() {
			continue
		}
		k := slotKind(kind)
		b.metrics.occupied.WithLabelValues(k.String()).Set(0)
		_ = s.buf.Release()
		b.metrics.handoffs.WithLabelValues(k.String(), "released").Inc()
		b.log.debugf("released %s buffer token %d at shutdown", k, s.token)
		b.host.FrameReturn(s.buf)
	}
}

// Slots returns a snapshot of the write and read slots.
func (b *Bridge) Slots() (write, read SlotState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots[writeSlot].snapshot(), b.slots[readSlot].snapshot()
}

// violation reports a broken handoff through the internal logger, the host
// log channel and the violations counter. Fatal violations panic in debug mode.
func (b *Bridge) violation(kind string, fatal bool, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	b.metrics.violations.WithLabelValues(kind).Inc()
	b.log.errorf("%s", msg)
	b.host.LogMessage(api.LogError, msg)
	if fatal && b.conf.DebugMode {
		panic(fmt.Errorf("%w: %s", ErrProtocolViolation, msg))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
