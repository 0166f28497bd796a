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

package simengine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/srediag/gwbridge/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubCallbacks struct {
	mu       sync.Mutex
	out      [][]byte
	inbound  []byte
	next     api.Token
	returned []api.Token
	received []int
	workers  []byte
	logs     []string
}

func (c *stubCallbacks) WriteReady() (api.Token, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.out) == 0 {
		return api.NoToken, nil
	}
	view := c.out[0]
	c.out = c.out[1:]
	c.next++
	return c.next, view
}

func (c *stubCallbacks) ReadReady() (api.Token, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = make([]byte, 64)
	c.next++
	return c.next, c.inbound
}

func (c *stubCallbacks) FrameReceived(tok api.Token, length int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, length)
}

func (c *stubCallbacks) FrameReturn(tok api.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.returned = append(c.returned, tok)
}

func (c *stubCallbacks) WorkerRequest(worker byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = append(c.workers, worker)
}

func (c *stubCallbacks) Heartbeat(now float64) float64 { return now + 0.05 }

func (c *stubCallbacks) Log(level api.LogLevel, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, message)
}

func (c *stubCallbacks) snapshot() (returned []api.Token, received []int, workers []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Token(nil), c.returned...), append([]int(nil), c.received...), append([]byte(nil), c.workers...)
}

func initParams() api.InitParams {
	return api.InitParams{AppID: "app.test", Platform: "linux", VarDir: "/tmp/var"}
}

func TestInitArguments(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, api.RCInvalidArgs, e.Init(api.InitParams{}, &stubCallbacks{}))
	assert.Equal(t, api.RCOK, e.Init(initParams(), &stubCallbacks{}))
	assert.Equal(t, api.RCGeneric, e.Init(initParams(), &stubCallbacks{}))

	forced := New(Options{InitRC: api.RCGeneric})
	assert.Equal(t, api.RCGeneric, forced.Init(initParams(), &stubCallbacks{}))
}

func TestHookRegister(t *testing.T) {
	e := New(Options{FailHook: api.HookClientIDChanged})
	assert.Equal(t, api.RCInvalidIdentifier, e.HookRegister(api.HookID(0), func() {}))
	assert.Equal(t, api.RCInvalidArgs, e.HookRegister(api.HookLoopStarted, nil))
	assert.Equal(t, api.RCOK, e.HookRegister(api.HookLoopStarted, func() {}))
	assert.Equal(t, api.RCAlreadyRegistered, e.HookRegister(api.HookLoopStarted, func() {}))
	assert.Equal(t, api.RCAlreadyRegistered, e.HookRegister(api.HookClientIDChanged, func() {}))
}

func TestStateBuffer(t *testing.T) {
	e := New(Options{})
	var buf [api.StateBufSize]byte
	for i := range buf {
		buf[i] = 'x'
	}
	e.State(&buf)
	assert.Equal(t, "*-----", string(buf[:stateLen]))
	assert.Equal(t, byte(0), buf[stateLen])
}

func TestWorkerArguments(t *testing.T) {
	e := New(Options{})
	defer e.Shutdown()
	assert.Equal(t, api.RCInvalidArgs, e.CSRWorker([][]byte{[]byte("CN\x00")}))
	assert.Equal(t, api.RCInvalidArgs, e.CSRWorker([][]byte{[]byte("CN\x00"), nil}))
	assert.Equal(t, api.RCOK, e.CSRWorker([][]byte{[]byte("CN\x00"), []byte("dev\x00"), nil}))
	assert.Equal(t, [][]string{{"CN", "dev"}}, e.CSRs())

	assert.Equal(t, api.RCInvalidArgs, e.SocketConfigureWorker(0, api.Family('x'), api.SockStream, 0, nil, nil))
	assert.Equal(t, api.RCOK, e.SocketConfigureWorker(443, api.FamilyIPv4, api.SockStream, 0, nil, nil))
	assert.Len(t, e.Sockets(), 1)

	assert.Equal(t, api.RCInvalidArgs, e.SetProxyServerWorker(nil, []byte("8080\x00")))
	assert.Equal(t, api.RCOK, e.SetProxyServerWorker([]byte("proxy\x00"), []byte("8080\x00")))
	assert.Equal(t, [][2]string{{"proxy", "8080"}}, e.Proxies())

	assert.Equal(t, api.RCInvalidArgs, e.CharacteristicsStore(nil))
	assert.Equal(t, api.RCOK, e.CharacteristicsStore([][]byte{[]byte("plm\x1fgo\x00"), nil}))
	assert.Equal(t, []string{"plm\x1fgo"}, e.Characteristics())
}

func TestYield(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, api.RCInvalidArgs, e.Yield('z'))
	assert.Equal(t, api.RCOK, e.Yield(api.YieldDataToSend))
	assert.EqualValues(t, 1, e.Pending())
	e.Shutdown()
	rc := e.Yield(api.YieldDataToSend)
	assert.Equal(t, api.RCYieldNotRunning, rc)
	assert.True(t, rc.Transient())
}

func TestRunLoop(t *testing.T) {
	sent := 0
	e := New(Options{
		Provision: true,
		OnWrite: func(view []byte) int {
			sent++
			return copy(view, "hello")
		},
	})
	cb := &stubCallbacks{out: [][]byte{make([]byte, 16)}}
	require.Equal(t, api.RCOK, e.Init(initParams(), cb))
	started := make(chan struct{})
	require.Equal(t, api.RCOK, e.HookRegister(api.HookLoopStarted, func() { close(started) }))

	done := make(chan api.RC)
	go func() { done <- e.Run() }()
	<-started
	assert.Equal(t, api.RCGeneric, e.Run())

	require.Equal(t, api.RCOK, e.Yield(api.YieldDataToSend))
	require.NoError(t, e.InjectFrame([]byte("incoming")))

	require.Eventually(t, func() bool {
		returned, received, _ := cb.snapshot()
		return len(returned) == 1 && len(received) == 1
	}, time.Second, 5*time.Millisecond)

	_, received, workers := cb.snapshot()
	assert.Equal(t, []int{len("incoming")}, received)
	assert.Equal(t, []byte{byte(api.WorkerKeypair)}, workers)
	assert.Equal(t, [][]byte{[]byte("hello")}, e.Sent())
	assert.Equal(t, "incoming", string(cb.inbound[:len("incoming")]))

	e.KeypairWorker()
	require.Eventually(t, func() bool {
		_, _, workers := cb.snapshot()
		return len(workers) == 2
	}, time.Second, 5*time.Millisecond)
	_, _, workers = cb.snapshot()
	assert.Equal(t, byte(api.WorkerCSR), workers[1])

	assert.Equal(t, api.RCOK, e.Shutdown())
	assert.Equal(t, api.RCOK, <-done)
	assert.False(t, e.Running())
	assert.Equal(t, 1, sent)
	assert.GreaterOrEqual(t, e.Heartbeats(), 1)
}

func TestCommandQueue(t *testing.T) {
	q := newCommandQueue(0)
	_, err := q.poll(5 * time.Millisecond)
	assert.ErrorIs(t, err, errQueueIdle)

	require.NoError(t, q.put(command{kind: cmdYield, code: 'W'}))
	c, err := q.poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte('W'), c.code)

	q.close()
	assert.True(t, q.closed())
	_, err = q.poll(time.Second)
	assert.ErrorIs(t, err, errQueueClosed)
	assert.ErrorIs(t, q.put(command{}), errQueueClosed)
}
