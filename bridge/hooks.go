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
	"fmt"
	"sync"

	"github.com/srediag/gwbridge/api"
)

// HookTable maps each hook identifier to at most one callback. A second
// registration for the same identifier is rejected.
type HookTable struct {
	mu  sync.RWMutex
	fns map[api.HookID]func()
}

func NewHookTable() *HookTable {
	return &HookTable{fns: make(map[api.HookID]func(), len(api.Hooks))}
}

// Register binds fn to id.
func (t *HookTable) Register(id api.HookID, fn func()) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, id)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil callback for %s", ErrInvalidArgument, id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fns[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	t.fns[id] = fn
	return nil
}

// RegisterCode is Register keyed by the engine's one-byte hook code.
func (t *HookTable) RegisterCode(code byte, fn func()) error {
	id, ok := api.ParseHookID(code)
	if !ok {
		return fmt.Errorf("%w: code %q", ErrInvalidIdentifier, code)
	}
	return t.Register(id, fn)
}

func (t *HookTable) Lookup(id api.HookID) (func(), bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.fns[id]
	return fn, ok
}

// Fire invokes the callback bound to id and reports whether there was one.
func (t *HookTable) Fire(id api.HookID) bool {
	fn, ok := t.Lookup(id)
	if !ok {
		return false
	}
	fn()
	return true
}

func (t *HookTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fns)
}
