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

// Package api defines the contracts on both sides of the boundary layer: the
// calls the native engine exposes (Engine), the callbacks the engine invokes
// (Callbacks) and the callbacks the host application implements (Host).
package api

// RC is a native engine return code.
type RC int

const (
	RCOK                RC = 0
	RCAlreadyRegistered RC = -9996
	RCInvalidIdentifier RC = -9997
	RCInvalidArgs       RC = -9998
	RCGeneric           RC = -9999
)

// Yield return codes strictly between these bounds are transient: the
// engine could not take the yield right now and the caller may ignore it.
const (
	rcTransientLow  RC = 7900
	rcTransientHigh RC = 8000

	RCYieldNotRunning RC = 7901
)

// Transient reports whether rc is a transient yield code.
func (rc RC) Transient() bool {
	return rc > rcTransientLow && rc < rcTransientHigh
}

// StateBufSize is the fixed size of the buffer the engine writes its state
// string into. The string is NUL terminated only if shorter than the buffer.
const StateBufSize = 24

// Token identifies one outstanding frame handoff. Tokens are never reused
// within a session; NoToken means no buffer was handed out.
type Token uint64

const NoToken Token = 0

// InitParams carries the session parameters passed to Engine.Init.
type InitParams struct {
	AppID string
	// AppIDSuffix is optional; the empty string means absent.
	AppIDSuffix string
	Platform    string
	VarDir      string
	// Handle is the opaque session handle; native trampolines resolve the
	// session from it.
	Handle string
}

// Engine is the call surface of the native gateway client engine.
//
// Time, Yield, ClientID, ClientTag, KeypairWorker and CSRWorker may be
// called off the engine thread; everything else must be serialized by the
// caller.
type Engine interface {
	Init(params InitParams, cb Callbacks) RC
	HookRegister(id HookID, fn func()) RC
	Run() RC
	Shutdown() RC
	Yield(code byte) RC
	State(buf *[StateBufSize]byte)
	KeypairWorker()
	// CSRWorker receives N NUL-terminated entries followed by a nil entry.
	CSRWorker(entries [][]byte) RC
	SetProxyServerWorker(host, port []byte) RC
	SocketConfigureWorker(port int, family Family, typ SocketType, protocol int, peerAddress, peerPort []byte) RC
	// Time is thread-safe but expensive.
	Time() float64
	LogSetMask(mask uint64) RC
	ClientID() string
	ClientTag() string
	CharacteristicsStore(entries [][]byte) RC
}

// Callbacks are invoked by the engine on its loop goroutine. No two
// callbacks of one session run concurrently.
type Callbacks interface {
	// WriteReady returns the region the engine may write an outgoing frame into.
	WriteReady() (Token, []byte)
	// ReadReady returns the region the engine may assemble an incoming frame in.
	ReadReady() (Token, []byte)
	// FrameReceived reports a complete frame of length bytes in the read region.
	FrameReceived(tok Token, length int)
	// FrameReturn hands a region back once the engine no longer uses it.
	FrameReturn(tok Token)
	WorkerRequest(worker byte)
	// Heartbeat returns the time at which it should be invoked next.
	Heartbeat(now float64) float64
	Log(level LogLevel, message string)
}

// GoStrings decodes a string array handed across the boundary: NUL
// terminated entries up to the first nil entry.
func GoStrings(entries [][]byte) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			break
		}
		n := len(e)
		for i, c := range e {
			if c == 0 {
				n = i
				break
			}
		}
		out = append(out, string(e[:n]))
	}
	return out
}
