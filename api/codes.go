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

package api

import "fmt"

// HookID identifies an engine lifecycle hook. The set is closed.
type HookID uint8

const (
	HookLoopStarted HookID = iota + 1
	HookConnectionReset
	HookConnectionEstablished
	HookStateChanged
	HookClientIDChanged
)

// Hooks lists every hook identifier in registration order.
var Hooks = []HookID{
	HookLoopStarted,
	HookConnectionReset,
	HookConnectionEstablished,
	HookStateChanged,
	HookClientIDChanged,
}

var hookCodes = map[HookID]byte{
	HookLoopStarted:           'E',
	HookConnectionReset:       'R',
	HookConnectionEstablished: 'c',
	HookStateChanged:          'S',
	HookClientIDChanged:       'i',
}

var hookNames = map[HookID]string{
	HookLoopStarted:           "loop-started",
	HookConnectionReset:       "connection-reset",
	HookConnectionEstablished: "connection-established",
	HookStateChanged:          "connection-state-changed",
	HookClientIDChanged:       "client-identity-changed",
}

// Valid reports whether h is one of the fixed hook identifiers.
func (h HookID) Valid() bool {
	_, ok := hookCodes[h]
	return ok
}

// Code returns the engine's one-byte code for h, or 0 if h is invalid.
func (h HookID) Code() byte { return hookCodes[h] }

func (h HookID) String() string {
	if name, ok := hookNames[h]; ok {
		return name
	}
	return fmt.Sprintf("hook(%d)", uint8(h))
}

// ParseHookID maps an engine hook code to its identifier.
func ParseHookID(code byte) (HookID, bool) {
	for id, c := range hookCodes {
		if c == code {
			return id, true
		}
	}
	return 0, false
}

// WorkerID identifies an asynchronous job the engine asks the host to run.
type WorkerID byte

const (
	WorkerKeypair WorkerID = 'P'
	WorkerCSR     WorkerID = 'C'
)

func (w WorkerID) String() string {
	switch w {
	case WorkerKeypair:
		return "keypair"
	case WorkerCSR:
		return "csr"
	}
	return fmt.Sprintf("worker(%q)", byte(w))
}

// ParseWorkerID maps an engine worker code to its identifier.
func ParseWorkerID(code byte) (WorkerID, bool) {
	switch WorkerID(code) {
	case WorkerKeypair, WorkerCSR:
		return WorkerID(code), true
	}
	return 0, false
}

// Yield codes understood by the engine.
const (
	YieldConnect          byte = 'c'
	YieldDisconnect       byte = 'd'
	YieldReset            byte = 'r'
	YieldRenewCert        byte = 'n'
	YieldRecoverFatal     byte = 'f'
	YieldNetworkReachable byte = 'Q'
	YieldDataToSend       byte = 'W'
)

// Family is a socket address family.
type Family byte

const (
	FamilyUnix Family = 'u'
	FamilyIPv4 Family = '4'
	FamilyIPv6 Family = '6'
)

func (f Family) Valid() bool {
	switch f {
	case FamilyUnix, FamilyIPv4, FamilyIPv6:
		return true
	}
	return false
}

// SocketType is a socket type.
type SocketType byte

const (
	SockStream   SocketType = 's'
	SockDatagram SocketType = 'd'
)

func (t SocketType) Valid() bool {
	return t == SockStream || t == SockDatagram
}

// LogLevel is the one-byte severity used on the engine and host log channels.
type LogLevel byte

const (
	LogDebug   LogLevel = 'D'
	LogInfo    LogLevel = 'I'
	LogWarning LogLevel = 'W'
	LogError   LogLevel = 'E'
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warn"
	case LogError:
		return "error"
	}
	return "info"
}
