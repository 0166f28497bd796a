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
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/pkg/frame"
)

const timeoutForClose = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type logLine struct {
	level   api.LogLevel
	message string
}

type received struct {
	buf    *frame.Buffer
	length int
}

// recordingHost is an api.Host that hands out queued buffers and records
// every callback.
type recordingHost struct {
	mu        sync.Mutex
	writeBufs []*frame.Buffer
	readBufs  []*frame.Buffer
	returned  []*frame.Buffer
	received  []received
	logs      []logLine
	workers   []api.WorkerID
	hooks     []api.HookID
	states    []string
	clientIDs [][2]string
	heartbeat func(now float64) float64

	loopStarted chan struct{}
	startOnce   sync.Once
}

func newRecordingHost() *recordingHost {
	return &recordingHost{loopStarted: make(chan struct{})}
}

func (h *recordingHost) queueWrite(bufs ...*frame.Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeBufs = append(h.writeBufs, bufs...)
}

func (h *recordingHost) queueRead(bufs ...*frame.Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readBufs = append(h.readBufs, bufs...)
}

func (h *recordingHost) LogMessage(level api.LogLevel, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, logLine{level, message})
}

func (h *recordingHost) WriteReady() *frame.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.writeBufs) == 0 {
		return nil
	}
	buf := h.writeBufs[0]
	h.writeBufs = h.writeBufs[1:]
	return buf
}

func (h *recordingHost) ReadReady() *frame.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.readBufs) == 0 {
		return nil
	}
	buf := h.readBufs[0]
	h.readBufs = h.readBufs[1:]
	return buf
}

func (h *recordingHost) FrameReceived(buf *frame.Buffer, length int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, received{buf, length})
}

func (h *recordingHost) FrameReturn(buf *frame.Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.returned = append(h.returned, buf)
}

func (h *recordingHost) WorkerRequest(worker api.WorkerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers = append(h.workers, worker)
}

func (h *recordingHost) Heartbeat(now float64) float64 {
	h.mu.Lock()
	fn := h.heartbeat
	h.mu.Unlock()
	if fn != nil {
		return fn(now)
	}
	return now + 5
}

func (h *recordingHost) hook(id api.HookID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, id)
}

func (h *recordingHost) LoopStarted() {
	h.hook(api.HookLoopStarted)
	h.startOnce.Do(func() { close(h.loopStarted) })
}

func (h *recordingHost) ConnectionReset() { h.hook(api.HookConnectionReset) }

func (h *recordingHost) ConnectionEstablished() { h.hook(api.HookConnectionEstablished) }

func (h *recordingHost) StateChanged(state string) {
	h.hook(api.HookStateChanged)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHost) ClientIDChanged(clientID, clientTag string) {
	h.hook(api.HookClientIDChanged)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clientIDs = append(h.clientIDs, [2]string{clientID, clientTag})
}

func (h *recordingHost) returnedBufs() []*frame.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*frame.Buffer(nil), h.returned...)
}

func (h *recordingHost) receivedFrames() []received {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]received(nil), h.received...)
}

func (h *recordingHost) errorLogs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, l := range h.logs {
		if l.level == api.LogError {
			out = append(out, l.message)
		}
	}
	return out
}

func (h *recordingHost) hookCount(id api.HookID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, got := range h.hooks {
		if got == id {
			n++
		}
	}
	return n
}

func testConfig() *Config {
	conf := DefaultConfig()
	conf.AppID = "app.test"
	conf.Platform = "linux"
	conf.VarDir = "/tmp/var"
	conf.DebugMode = false
	conf.LogOutput = io.Discard
	return conf
}

func newTestBridge(tb testing.TB, engine api.Engine, host api.Host, conf *Config) *Bridge {
	tb.Helper()
	if conf == nil {
		conf = testConfig()
	}
	b, err := New(engine, host, conf)
	if err != nil {
		tb.Fatalf("new bridge: %v", err)
	}
	tb.Cleanup(func() {
		_ = b.Shutdown()
		_ = b.Close(timeoutForClose)
	})
	return b
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}
