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
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/pkg/frame"
)

// HeaderSize is the size of the frame envelope.
const HeaderSize = 8

const (
	controlBit  = 0x80000000
	lengthMask  = 0x00ffffff
	flagsOffset = 24
)

// FrameHeader is the 8 byte envelope in front of every incoming frame: a
// control bit, a 31 bit identifier (version and type of a control frame,
// stream id of a data frame), 8 bits of flags and a 24 bit payload length.
type FrameHeader struct {
	Control bool
	ID      uint32
	Flags   byte
	Length  int
}

// ParseFrameHeader decodes the envelope at the start of b.
func ParseFrameHeader(b []byte) (FrameHeader, error) {
	if len(b) < HeaderSize {
		return FrameHeader{}, fmt.Errorf("reactor: short frame of %d bytes", len(b))
	}
	word := binary.BigEndian.Uint32(b[0:4])
	size := binary.BigEndian.Uint32(b[4:8])
	return FrameHeader{
		Control: word&controlBit != 0,
		ID:      word &^ controlBit,
		Flags:   byte(size >> flagsOffset),
		Length:  int(size & lengthMask),
	}, nil
}

// PutFrameHeader encodes h into the first HeaderSize bytes of b.
func PutFrameHeader(b []byte, h FrameHeader) {
	word := h.ID &^ controlBit
	if h.Control {
		word |= controlBit
	}
	binary.BigEndian.PutUint32(b[0:4], word)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.Flags)<<flagsOffset|uint32(h.Length)&lengthMask)
}

// FrameConsumer processes one incoming frame. buf is positioned past the
// header. It returns true when the buffer may go back to the pool; a
// consumer keeping the buffer gives it back through Reactor.Pool later.
type FrameConsumer interface {
	ConsumeFrame(r *Reactor, buf *frame.Buffer, hdr FrameHeader) (giveBack bool)
}

// FrameConsumerFunc adapts a function to FrameConsumer.
type FrameConsumerFunc func(r *Reactor, buf *frame.Buffer, hdr FrameHeader) bool

func (f FrameConsumerFunc) ConsumeFrame(r *Reactor, buf *frame.Buffer, hdr FrameHeader) bool {
	return f(r, buf, hdr)
}

// RegisterControlConsumer routes control frames with identifier id to c.
func (r *Reactor) RegisterControlConsumer(id uint32, c FrameConsumer) {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	r.controlConsumers[id&^controlBit] = c
}

// SetDataConsumer routes every data frame to c.
func (r *Reactor) SetDataConsumer(c FrameConsumer) {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	r.dataConsumer = c
}

// dispatch hands a read mode frame to its consumer and reports whether the
// buffer goes back to the pool. Consumer panics are logged and the buffer
// is given back.
func (r *Reactor) dispatch(buf *frame.Buffer) (giveBack bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("frame consumer panicked", zap.Any("panic", p))
			giveBack = true
		}
	}()

	raw, err := buf.Read(HeaderSize)
	if err != nil {
		r.log.Error("incorrect frame received", zap.Int("length", len(raw)), zap.Error(err))
		return true
	}
	hdr, _ := ParseFrameHeader(raw)

	r.consumersMu.RLock()
	var c FrameConsumer
	if hdr.Control {
		c = r.controlConsumers[hdr.ID]
	} else {
		c = r.dataConsumer
	}
	r.consumersMu.RUnlock()

	if hdr.Control && hdr.Length+HeaderSize != buf.Limit() {
		r.log.Error("incorrect frame received, closing connection",
			zap.Int("limit", buf.Limit()), zap.Uint32("id", hdr.ID),
			zap.Int("length", hdr.Length), zap.Uint8("flags", hdr.Flags))
		if err := r.yield(api.YieldDisconnect); err != nil {
			r.log.Error("disconnect after incorrect frame", zap.Error(err))
		}
		return true
	}
	if c == nil {
		r.log.Error("unidentified frame received",
			zap.Bool("control", hdr.Control), zap.Uint32("id", hdr.ID), zap.Int("length", hdr.Length))
		return true
	}
	return c.ConsumeFrame(r, buf, hdr)
}
