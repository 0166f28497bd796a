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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookCodesRoundTrip(t *testing.T) {
	seen := map[byte]bool{}
	for _, id := range Hooks {
		assert.True(t, id.Valid())
		code := id.Code()
		assert.False(t, seen[code], "duplicate code %q", code)
		seen[code] = true
		back, ok := ParseHookID(code)
		assert.True(t, ok)
		assert.Equal(t, id, back)
	}
	_, ok := ParseHookID('x')
	assert.False(t, ok)
	assert.False(t, HookID(0).Valid())
	assert.False(t, HookID(42).Valid())
	assert.Equal(t, "hook(42)", HookID(42).String())
}

func TestParseWorkerID(t *testing.T) {
	w, ok := ParseWorkerID('P')
	assert.True(t, ok)
	assert.Equal(t, WorkerKeypair, w)
	w, ok = ParseWorkerID('C')
	assert.True(t, ok)
	assert.Equal(t, WorkerCSR, w)
	_, ok = ParseWorkerID('Z')
	assert.False(t, ok)
}

func TestSocketCodes(t *testing.T) {
	for _, f := range []Family{FamilyUnix, FamilyIPv4, FamilyIPv6} {
		assert.True(t, f.Valid())
	}
	assert.False(t, Family('x').Valid())
	assert.True(t, SockStream.Valid())
	assert.True(t, SockDatagram.Valid())
	assert.False(t, SocketType('r').Valid())
}
