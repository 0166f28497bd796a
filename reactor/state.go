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

import "github.com/valyala/bytebufferpool"

// LogFlag is the engine diagnostic bitmask.
type LogFlag uint64

const LogDebugGeneric LogFlag = 0x1

// Has reports whether every bit of mask is set.
func (f LogFlag) Has(mask LogFlag) bool { return f&mask == mask }

// Engine state characters.
const (
	StateNotInited     byte = '*'
	StateInited        byte = 'i'
	StateIdling        byte = 'D'
	StateConnecting    byte = 'C'
	StateProxyRequest  byte = 'p'
	StateProxyResponse byte = 'P'
	StateHandshaking   byte = 'H'
	StateEstablished   byte = 'E'
	StateClosing       byte = 'c'
	StateKeypairReady  byte = 'Y'
	StateAnonymous     byte = 'A'
	StateSignedIn      byte = 'N'
	StateErrorRetry    byte = 'r'
	StateErrorNetwork  byte = 'n'
	StateErrorFatal    byte = 'f'
)

var stateNames = map[byte]string{
	StateNotInited:     "NOT_INITED",
	StateInited:        "INITED",
	StateIdling:        "IDLING",
	StateConnecting:    "CONNECTING",
	StateProxyRequest:  "PROXY_REQ",
	StateProxyResponse: "PROXY_RESP",
	StateHandshaking:   "HANDSHAKING",
	StateEstablished:   "ESTABLISHED",
	StateClosing:       "CLOSING",
	StateKeypairReady:  "PPK_READY",
	StateAnonymous:     "GWCONN_ANONYMOUS",
	StateSignedIn:      "GWCONN_SIGNED_IN",
	StateErrorRetry:    "ERROR_RETRY",
	StateErrorNetwork:  "ERROR_NETWORK",
	StateErrorFatal:    "ERROR_FATAL",
}

// TranslateState spells out the known characters of an engine state string,
// each followed by '|'. Unknown characters are skipped.
func TranslateState(state string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for i := 0; i < len(state); i++ {
		name, ok := stateNames[state[i]]
		if !ok {
			continue
		}
		_, _ = buf.WriteString(name)
		_ = buf.WriteByte('|')
	}
	return buf.String()
}

// Ready reports whether the key pair is ready, the client is signed in and
// the connection is not in a fatal error.
func Ready(state string) bool {
	return len(state) > 4 &&
		state[3] == StateKeypairReady &&
		state[4] == StateSignedIn &&
		state[0] != StateErrorFatal
}

func connecting(state string) bool {
	return len(state) > 0 && state[0] == StateConnecting
}
