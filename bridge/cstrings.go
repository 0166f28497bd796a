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
	"strings"

	"github.com/valyala/bytebufferpool"
)

// packStrings lays out list as the engine's string array: one NUL
// terminated entry per input, in order, followed by a nil entry. All entries
// share one freshly allocated block owned by the caller, so the engine keeps
// no reference to the input strings.
func packStrings(list []string) ([][]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	for i, s := range list {
		if strings.IndexByte(s, 0) >= 0 {
			return nil, fmt.Errorf("%w: entry %d contains NUL", ErrInvalidArgument, i)
		}
		_, _ = bb.WriteString(s)
		_ = bb.WriteByte(0)
	}
	block := make([]byte, bb.Len())
	copy(block, bb.B)

	entries := make([][]byte, len(list)+1)
	offset := 0
	for i, s := range list {
		end := offset + len(s) + 1
		entries[i] = block[offset:end:end]
		offset = end
	}
	return entries, nil
}

// cString copies s into a NUL terminated byte slice. With optional set the
// empty string maps to nil.
func cString(s string, optional bool) ([]byte, error) {
	if optional && s == "" {
		return nil, nil
	}
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q contains NUL", ErrInvalidArgument, s)
	}
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out, nil
}

// goString reads a NUL terminated entry back, stopping at the first NUL.
func goString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
