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
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// sessions maps opaque handles to live bridges. Native trampolines carry the
// handle instead of a pointer into the Go heap.
var sessions = cmap.New[*Bridge]()

func registerSession(b *Bridge) string {
	handle := uuid.NewString()
	sessions.Set(handle, b)
	return handle
}

func unregisterSession(handle string) {
	sessions.Remove(handle)
}

// Lookup resolves a session handle.
func Lookup(handle string) (*Bridge, bool) {
	return sessions.Get(handle)
}

// Sessions returns the number of live sessions.
func Sessions() int {
	return sessions.Count()
}
