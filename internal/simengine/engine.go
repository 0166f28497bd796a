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

// Package simengine is an in-process stand-in for the native gateway engine.
// It runs a single loop goroutine fed by a command queue and drives the
// api.Callbacks contract the same way the real engine does: write and read
// handoffs, hooks, worker requests and heartbeats.
package simengine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/srediag/gwbridge/api"
)

// LogDebugGeneric enables the engine's generic debug lines.
const LogDebugGeneric uint64 = 0x1

// maxWritesPerYield bounds one data-to-send cycle.
const maxWritesPerYield = 64

const maxPollWait = time.Minute

// state string layout
const (
	stConn   = 0
	stKey    = 3
	stAuth   = 4
	stateLen = 6
)

// Options tune the simulated engine.
type Options struct {
	// Provision makes the loop request a key pair and a CSR until the
	// client is signed in.
	Provision bool
	// OnWrite consumes an outgoing region and returns how many bytes it sent.
	// By default the whole region is sent.
	OnWrite func(view []byte) int
	// FailHook makes HookRegister fail for one identifier.
	FailHook api.HookID
	// InitRC forces the return code of Init.
	InitRC api.RC
	// QueueCap is the initial command queue capacity.
	QueueCap int64
}

// SocketCall records one socket configure request.
type SocketCall struct {
	Port        int
	Family      api.Family
	Type        api.SocketType
	Protocol    int
	PeerAddress []byte
	PeerPort    []byte
}

// Engine implements api.Engine.
type Engine struct {
	opts  Options
	start time.Time
	cmds  *commandQueue

	inited  atomic.Bool
	running atomic.Bool

	mu        sync.Mutex
	cb        api.Callbacks
	params    api.InitParams
	hooks     map[api.HookID]func()
	state     [stateLen]byte
	clientID  string
	clientTag string
	logMask   uint64

	sent            [][]byte
	received        int
	keypairs        int
	csrs            [][]string
	proxies         [][2]string
	sockets         []SocketCall
	characteristics []string
	yields          []byte
	heartbeats      int
}

var _ api.Engine = (*Engine)(nil)

func New(opts Options) *Engine {
	e := &Engine{
		opts:      opts,
		start:     time.Now(),
		cmds:      newCommandQueue(opts.QueueCap),
		hooks:     make(map[api.HookID]func()),
		clientID:  "[AAAAAAAAAAAAAAAA]",
		clientTag: strings.Repeat("0", 32),
	}
	copy(e.state[:], "*-----")
	return e
}

func (e *Engine) Init(params api.InitParams, cb api.Callbacks) api.RC {
	if e.opts.InitRC != api.RCOK {
		return e.opts.InitRC
	}
	if cb == nil || params.AppID == "" || params.VarDir == "" {
		return api.RCInvalidArgs
	}
	if !e.inited.CompareAndSwap(false, true) {
		return api.RCGeneric
	}
	e.mu.Lock()
	e.cb = cb
	e.params = params
	e.state[stConn] = 'i'
	e.mu.Unlock()
	return api.RCOK
}

func (e *Engine) HookRegister(id api.HookID, fn func()) api.RC {
	if !id.Valid() {
		return api.RCInvalidIdentifier
	}
	if fn == nil {
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.hooks[id]; ok || id == e.opts.FailHook {
		return api.RCAlreadyRegistered
	}
	e.hooks[id] = fn
	return api.RCOK
}

// Run drives the loop until Shutdown.
func (e *Engine) Run() api.RC {
	if !e.inited.Load() {
		return api.RCGeneric
	}
	if !e.running.CompareAndSwap(false, true) {
		return api.RCGeneric
	}
	defer e.running.Store(false)

	e.setState(stConn, 'D')
	e.fire(api.HookLoopStarted)
	e.provision()

	deadline := e.heartbeat()
	for {
		cmd, err := e.cmds.poll(e.until(deadline))
		switch {
		case errors.Is(err, errQueueClosed):
			e.debugf("event loop terminated")
			return api.RCOK
		case errors.Is(err, errQueueIdle):
			deadline = e.heartbeat()
			continue
		case err != nil:
			e.log(api.LogError, err.Error())
			return api.RCGeneric
		}
		e.handle(cmd)
		if e.Time() >= deadline {
			deadline = e.heartbeat()
		}
	}
}

// Shutdown stops the loop; Run returns once pending callbacks are done.
func (e *Engine) Shutdown() api.RC {
	e.cmds.close()
	return api.RCOK
}

func (e *Engine) Yield(code byte) api.RC {
	switch code {
	case api.YieldConnect, api.YieldDisconnect, api.YieldReset, api.YieldRenewCert,
		api.YieldRecoverFatal, api.YieldNetworkReachable, api.YieldDataToSend:
	default:
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	e.yields = append(e.yields, code)
	e.mu.Unlock()
	if err := e.cmds.put(command{kind: cmdYield, code: code}); err != nil {
		return api.RCYieldNotRunning
	}
	return api.RCOK
}

func (e *Engine) State(buf *[api.StateBufSize]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(buf[:], e.state[:])
	if n < len(buf) {
		buf[n] = 0
	}
}

// KeypairWorker generates the key pair; the loop picks up the result.
func (e *Engine) KeypairWorker() {
	e.mu.Lock()
	e.keypairs++
	e.mu.Unlock()
	_ = e.cmds.put(command{kind: cmdKeypairDone})
}

func (e *Engine) CSRWorker(entries [][]byte) api.RC {
	if len(entries) == 0 || entries[len(entries)-1] != nil {
		return api.RCInvalidArgs
	}
	names := api.GoStrings(entries)
	if len(names)%2 != 0 {
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	e.csrs = append(e.csrs, names)
	e.mu.Unlock()
	if err := e.cmds.put(command{kind: cmdCSRDone}); err != nil {
		return api.RCGeneric
	}
	return api.RCOK
}

func (e *Engine) SetProxyServerWorker(host, port []byte) api.RC {
	if host == nil || port == nil {
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proxies = append(e.proxies, [2]string{cstr(host), cstr(port)})
	return api.RCOK
}

func (e *Engine) SocketConfigureWorker(port int, family api.Family, typ api.SocketType, protocol int, peerAddress, peerPort []byte) api.RC {
	if !family.Valid() || !typ.Valid() {
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sockets = append(e.sockets, SocketCall{
		Port:        port,
		Family:      family,
		Type:        typ,
		Protocol:    protocol,
		PeerAddress: peerAddress,
		PeerPort:    peerPort,
	})
	return api.RCOK
}

// Time returns seconds since the engine was created.
func (e *Engine) Time() float64 {
	return time.Since(e.start).Seconds()
}

func (e *Engine) LogSetMask(mask uint64) api.RC {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logMask = mask
	return api.RCOK
}

func (e *Engine) ClientID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID
}

func (e *Engine) ClientTag() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientTag
}

func (e *Engine) CharacteristicsStore(entries [][]byte) api.RC {
	if len(entries) == 0 || entries[len(entries)-1] != nil {
		return api.RCInvalidArgs
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.characteristics = append(e.characteristics, api.GoStrings(entries)...)
	return api.RCOK
}

// InjectFrame queues an incoming frame for delivery through the read slot.
func (e *Engine) InjectFrame(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	if err := e.cmds.put(command{kind: cmdInbound, data: cp}); err != nil {
		return fmt.Errorf("inject frame: %w", err)
	}
	return nil
}

func (e *Engine) handle(cmd command) {
	switch cmd.kind {
	case cmdYield:
		e.handleYield(cmd.code)
	case cmdInbound:
		e.deliver(cmd.data)
	case cmdKeypairDone:
		e.setState(stKey, 'Y')
		e.provision()
	case cmdCSRDone:
		id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		e.mu.Lock()
		e.clientID = "[" + id[:16] + "]"
		e.clientTag = id
		e.mu.Unlock()
		e.fire(api.HookClientIDChanged)
		e.setState(stAuth, 'N')
	}
}

func (e *Engine) handleYield(code byte) {
	e.debugf("yield %q", code)
	switch code {
	case api.YieldDataToSend:
		e.flush()
	case api.YieldConnect:
		if e.stateAt(stConn) != 'D' {
			return
		}
		for _, st := range []byte{'C', 'H', 'E'} {
			e.setState(stConn, st)
		}
		e.fire(api.HookConnectionEstablished)
		e.flush()
	case api.YieldDisconnect, api.YieldReset:
		if e.stateAt(stConn) == 'E' {
			e.setState(stConn, 'c')
		}
		e.setState(stConn, 'D')
		e.fire(api.HookConnectionReset)
	case api.YieldRecoverFatal:
		if e.stateAt(stConn) == 'f' {
			e.setState(stConn, 'D')
		}
	case api.YieldRenewCert:
		e.setState(stAuth, 'A')
		e.callbacks().WorkerRequest(byte(api.WorkerCSR))
	case api.YieldNetworkReachable:
	}
}

// flush sends frames until the host has nothing more to write.
func (e *Engine) flush() {
	cb := e.callbacks()
	for i := 0; i < maxWritesPerYield; i++ {
		tok, view := cb.WriteReady()
		if tok == api.NoToken {
			return
		}
		n := len(view)
		if e.opts.OnWrite != nil {
			n = clampInt(e.opts.OnWrite(view), 0, len(view))
		}
		frame := make([]byte, n)
		copy(frame, view[:n])
		e.mu.Lock()
		e.sent = append(e.sent, frame)
		e.mu.Unlock()
		cb.FrameReturn(tok)
	}
}

func (e *Engine) deliver(data []byte) {
	cb := e.callbacks()
	tok, view := cb.ReadReady()
	if tok == api.NoToken {
		e.log(api.LogWarning, fmt.Sprintf("no read buffer, dropped %d byte frame", len(data)))
		return
	}
	if len(data) > len(view) {
		e.log(api.LogError, fmt.Sprintf("frame of %d bytes exceeds read buffer of %d", len(data), len(view)))
		cb.FrameReturn(tok)
		return
	}
	n := copy(view, data)
	e.mu.Lock()
	e.received++
	e.mu.Unlock()
	cb.FrameReceived(tok, n)
}

func (e *Engine) provision() {
	if !e.opts.Provision {
		return
	}
	switch {
	case e.stateAt(stKey) != 'Y':
		e.callbacks().WorkerRequest(byte(api.WorkerKeypair))
	case e.stateAt(stAuth) != 'N':
		e.callbacks().WorkerRequest(byte(api.WorkerCSR))
	}
}

func (e *Engine) heartbeat() float64 {
	e.mu.Lock()
	e.heartbeats++
	e.mu.Unlock()
	return e.callbacks().Heartbeat(e.Time())
}

// until converts a heartbeat deadline into a poll timeout.
func (e *Engine) until(deadline float64) time.Duration {
	wait := deadline - e.Time()
	if wait > maxPollWait.Seconds() {
		return maxPollWait
	}
	return time.Duration(wait * float64(time.Second))
}

func (e *Engine) setState(i int, c byte) {
	e.mu.Lock()
	changed := e.state[i] != c
	e.state[i] = c
	e.mu.Unlock()
	if changed {
		e.fire(api.HookStateChanged)
	}
}

func (e *Engine) stateAt(i int) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[i]
}

func (e *Engine) fire(id api.HookID) {
	e.mu.Lock()
	fn := e.hooks[id]
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *Engine) callbacks() api.Callbacks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cb
}

func (e *Engine) log(lv api.LogLevel, msg string) {
	if cb := e.callbacks(); cb != nil {
		cb.Log(lv, msg)
	}
}

func (e *Engine) debugf(format string, a ...interface{}) {
	e.mu.Lock()
	on := e.logMask&LogDebugGeneric != 0
	e.mu.Unlock()
	if on {
		e.log(api.LogDebug, fmt.Sprintf(format, a...))
	}
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
