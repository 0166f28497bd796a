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

import "github.com/srediag/gwbridge/pkg/frame"

// Host is implemented by the application on top of the boundary layer.
//
// Every method except LogMessage runs on the engine loop goroutine and must
// not block: a blocked host stalls the whole gateway connection.
type Host interface {
	LogMessage(level LogLevel, message string)

	// WriteReady returns a buffer whose [position, limit) region holds the
	// next outgoing frame, or nil when there is nothing to send.
	WriteReady() *frame.Buffer
	// ReadReady returns an empty buffer (position 0) for an incoming frame.
	ReadReady() *frame.Buffer
	// FrameReceived passes ownership of a filled read buffer to the host.
	FrameReceived(buf *frame.Buffer, length int)
	// FrameReturn gives back a buffer the engine has finished with.
	FrameReturn(buf *frame.Buffer)

	WorkerRequest(worker WorkerID)
	Heartbeat(now float64) float64

	LoopStarted()
	ConnectionReset()
	ConnectionEstablished()
	StateChanged(state string)
	ClientIDChanged(clientID, clientTag string)
}
