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

// Package framepool hands out frame.Buffers for the engine handoff.
//
// Buffers come from two sources: size classes carved out of one contiguous
// region (heap or a mapped shared memory file), and heap frames of the default
// capacity bounded by low/high water marks. Every outstanding buffer has its
// own storage, so storage addresses never alias while a handoff is open.
package framepool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/gwbridge/internal/shm"
	"github.com/srediag/gwbridge/pkg/frame"
)

const (
	DefaultLowWaterMark  = 16
	DefaultHighWaterMark = 40960
	DefaultFrameCapacity = 16 * 1024
)

var (
	// ErrExhausted is returned when the high water mark is reached.
	ErrExhausted = errors.New("framepool: no more available frames in the pool")
	// ErrNotOwned is returned when giving back a buffer the pool did not issue
	// or that was already given back.
	ErrNotOwned = errors.New("framepool: buffer not issued by this pool")
)

// SizeClass describes Count buffers of Size bytes carved from the region.
type SizeClass struct {
	Size  uint32 `yaml:"size"`
	Count uint32 `yaml:"count"`
}

type sizeClasses []SizeClass

func (s sizeClasses) Len() int           { return len(s) }
func (s sizeClasses) Less(i, j int) bool { return s[i].Size < s[j].Size }
func (s sizeClasses) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Config holds pool sizing parameters.
type Config struct {
	FrameCapacity int         `yaml:"frame_capacity"`
	LowWaterMark  int         `yaml:"low_water_mark"`
	HighWaterMark int         `yaml:"high_water_mark"`
	Classes       []SizeClass `yaml:"classes"`
	// SharedMemoryPath backs the size classes with a mapped file instead of
	// heap memory. Only supported on Linux.
	SharedMemoryPath string `yaml:"shared_memory_path"`

	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig returns the default pool configuration: heap frames only.
func DefaultConfig() Config {
	return Config{
		FrameCapacity: DefaultFrameCapacity,
		LowWaterMark:  DefaultLowWaterMark,
		HighWaterMark: DefaultHighWaterMark,
	}
}

// RegionSize returns the number of bytes needed by the size classes.
func (c Config) RegionSize() int {
	total := 0
	for _, class := range c.Classes {
		total += int(class.Size) * int(class.Count)
	}
	return total
}

func (c Config) verify() error {
	if c.FrameCapacity <= 0 {
		return fmt.Errorf("framepool: frame capacity must be positive, got %d", c.FrameCapacity)
	}
	if c.LowWaterMark < 0 || c.HighWaterMark <= 0 || c.LowWaterMark > c.HighWaterMark {
		return fmt.Errorf("framepool: invalid water marks low=%d high=%d", c.LowWaterMark, c.HighWaterMark)
	}
	for _, class := range c.Classes {
		if class.Size == 0 || class.Count == 0 {
			return fmt.Errorf("framepool: invalid size class %+v", class)
		}
	}
	return nil
}

type origin int

const (
	fromHeap origin = iota
	fromClass
	fromOversize
)

type classList struct {
	size uint32
	free []*frame.Buffer
}

// Stats is a snapshot of the pool.
type Stats struct {
	Outstanding int
	HeapTotal   int
	HeapFree    int
	ClassFree   map[uint32]int
}

// Pool manages frame buffers. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	conf     Config
	classes  []*classList
	heapFree []*frame.Buffer
	// heap frames created and not discarded, free or outstanding
	heapTotal int
	issued    map[*frame.Buffer]origin
	region    *shm.MappedRegion

	outstanding prometheus.Gauge
	heapGauge   prometheus.Gauge
	exhausted   prometheus.Counter
}

// New creates a Pool. The size-class region is allocated up front.
func New(ctx context.Context, conf Config) (*Pool, error) {
	if err := conf.verify(); err != nil {
		return nil, err
	}
	p := &Pool{
		conf:   conf,
		issued: make(map[*frame.Buffer]origin),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gwbridge",
			Subsystem: "framepool",
			Name:      "outstanding_frames",
			Help:      "Frames currently issued by the pool.",
		}),
		heapGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gwbridge",
			Subsystem: "framepool",
			Name:      "heap_frames",
			Help:      "Heap frames created and not yet discarded.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gwbridge",
			Subsystem: "framepool",
			Name:      "exhausted_total",
			Help:      "Acquisitions refused because the high water mark was reached.",
		}),
	}
	if conf.Registerer != nil {
		for _, c := range []prometheus.Collector{p.outstanding, p.heapGauge, p.exhausted} {
			if err := conf.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("framepool: register metrics: %w", err)
			}
		}
	}

	size := conf.RegionSize()
	if size == 0 {
		return p, nil
	}
	var mem []byte
	if conf.SharedMemoryPath != "" {
		region, err := shm.MapRegion(ctx, shm.MapOptions{Path: conf.SharedMemoryPath, Size: size, Create: true})
		if err != nil {
			return nil, fmt.Errorf("framepool: map region: %w", err)
		}
		p.region = region
		mem = region.Addr
	} else {
		mem = make([]byte, size)
	}
	p.carve(mem)
	return p, nil
}

// carve splits mem into the configured size classes, smallest first.
func (p *Pool) carve(mem []byte) {
	layout := make(sizeClasses, len(p.conf.Classes))
	copy(layout, p.conf.Classes)
	sort.Sort(layout)
	offset := 0
	for _, class := range layout {
		var list *classList
		if n := len(p.classes); n > 0 && p.classes[n-1].size == class.Size {
			list = p.classes[n-1]
		} else {
			list = &classList{size: class.Size}
			p.classes = append(p.classes, list)
		}
		for i := uint32(0); i < class.Count; i++ {
			end := offset + int(class.Size)
			buf, _ := frame.Wrap(mem[offset:end:end], 0, int(class.Size))
			list.free = append(list.free, buf)
			offset = end
		}
	}
}

// Acquire returns a buffer of at least minCapacity bytes in write mode.
func (p *Pool) Acquire(minCapacity int) (*frame.Buffer, error) {
	if minCapacity < 0 {
		return nil, fmt.Errorf("framepool: negative capacity %d", minCapacity)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, list := range p.classes {
		if int(list.size) < minCapacity || len(list.free) == 0 {
			continue
		}
		buf := list.free[len(list.free)-1]
		list.free = list.free[:len(list.free)-1]
		return p.issue(buf, fromClass), nil
	}

	if minCapacity <= p.conf.FrameCapacity {
		if n := len(p.heapFree); n > 0 {
			buf := p.heapFree[n-1]
			p.heapFree = p.heapFree[:n-1]
			return p.issue(buf, fromHeap), nil
		}
		if p.heapTotal >= p.conf.HighWaterMark {
			p.exhausted.Inc()
			return nil, ErrExhausted
		}
		p.heapTotal++
		p.heapGauge.Set(float64(p.heapTotal))
		return p.issue(frame.New(p.conf.FrameCapacity), fromHeap), nil
	}

	if len(p.issued) >= p.conf.HighWaterMark {
		p.exhausted.Inc()
		return nil, ErrExhausted
	}
	return p.issue(frame.New(minCapacity), fromOversize), nil
}

// Borrow returns a buffer of the default frame capacity.
func (p *Pool) Borrow() (*frame.Buffer, error) {
	return p.Acquire(p.conf.FrameCapacity)
}

func (p *Pool) issue(buf *frame.Buffer, o origin) *frame.Buffer {
	_ = buf.Reset()
	p.issued[buf] = o
	p.outstanding.Set(float64(len(p.issued)))
	return buf
}

// GiveBack returns a buffer to the pool. Heap frames above the low water
// mark are discarded instead of kept.
func (p *Pool) GiveBack(buf *frame.Buffer) error {
	if buf == nil {
		return ErrNotOwned
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.issued[buf]
	if !ok {
		return ErrNotOwned
	}
	if buf.Lent() {
		return frame.ErrLent
	}
	delete(p.issued, buf)
	p.outstanding.Set(float64(len(p.issued)))
	_ = buf.Reset()

	switch o {
	case fromClass:
		for _, list := range p.classes {
			if int(list.size) == buf.Capacity() {
				list.free = append(list.free, buf)
				break
			}
		}
	case fromHeap:
		if p.heapTotal > p.conf.LowWaterMark {
			p.heapTotal--
			p.heapGauge.Set(float64(p.heapTotal))
		} else {
			p.heapFree = append(p.heapFree, buf)
		}
	}
	return nil
}

// HeartBeat trims free heap frames above the low water mark.
func (p *Pool) HeartBeat(now float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.heapFree) > 0 && p.heapTotal > p.conf.LowWaterMark {
		p.heapFree[len(p.heapFree)-1] = nil
		p.heapFree = p.heapFree[:len(p.heapFree)-1]
		p.heapTotal--
	}
	p.heapGauge.Set(float64(p.heapTotal))
}

// Owns reports whether buf is currently issued by the pool.
func (p *Pool) Owns(buf *frame.Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.issued[buf]
	return ok
}

// Stats returns the number of free buffers per source.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{
		Outstanding: len(p.issued),
		HeapTotal:   p.heapTotal,
		HeapFree:    len(p.heapFree),
		ClassFree:   make(map[uint32]int, len(p.classes)),
	}
	for _, list := range p.classes {
		st.ClassFree[list.size] = len(list.free)
	}
	return st
}

// Mapped reports whether the size classes live in a mapped shared memory region.
func (p *Pool) Mapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region != nil
}

// Close releases the shared memory region, if any. Buffers carved from it
// must not be used afterwards.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return nil
	}
	err := shm.UnmapRegion(ctx, p.region)
	p.region = nil
	p.classes = nil
	return err
}
