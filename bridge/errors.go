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
	"errors"
	"fmt"

	"github.com/srediag/gwbridge/api"
)

// Code classifies every error the bridge returns.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeProtocolViolation
	CodeAlreadyRegistered
	CodeInvalidIdentifier
	CodeGeneric
)

var codeNames = [...]string{
	CodeOK:                "ok",
	CodeInvalidArgument:   "invalid argument",
	CodeProtocolViolation: "protocol violation",
	CodeAlreadyRegistered: "already registered",
	CodeInvalidIdentifier: "invalid identifier",
	CodeGeneric:           "generic",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return codeNames[c]
}

var (
	// ErrInvalidArgument is returned for malformed arguments: unknown socket
	// family or type, oversized yield code, strings containing NUL.
	ErrInvalidArgument = errors.New("gwbridge: invalid argument")
	// ErrProtocolViolation marks a broken buffer handoff.
	ErrProtocolViolation = errors.New("gwbridge: protocol violation")
	// ErrAlreadyRegistered is returned when a hook identifier already has a callback.
	ErrAlreadyRegistered = errors.New("gwbridge: hook already registered")
	// ErrInvalidIdentifier is returned for a hook identifier outside the fixed set.
	ErrInvalidIdentifier = errors.New("gwbridge: invalid hook identifier")
	// ErrGeneric is an uncategorized engine failure.
	ErrGeneric = errors.New("gwbridge: engine failure")

	// ErrNotInitialized is returned by calls that need a successful Init.
	ErrNotInitialized = errors.New("gwbridge: session not initialized")
	// ErrSessionState is returned when a lifecycle call comes out of order,
	// for example Init twice or Run after a failed Init.
	ErrSessionState = errors.New("gwbridge: invalid session state")
)

// EngineError wraps a non-OK engine return code.
type EngineError struct {
	Op string
	RC api.RC
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("gwbridge: %s: engine return code %d", e.Op, int(e.RC))
}

// Unwrap maps the return code to one of the sentinel errors so that
// errors.Is works across the boundary.
func (e *EngineError) Unwrap() error {
	switch e.RC {
	case api.RCAlreadyRegistered:
		return ErrAlreadyRegistered
	case api.RCInvalidIdentifier:
		return ErrInvalidIdentifier
	case api.RCInvalidArgs:
		return ErrInvalidArgument
	}
	return ErrGeneric
}

func checkRC(op string, rc api.RC) error {
	if rc == api.RCOK {
		return nil
	}
	return &EngineError{Op: op, RC: rc}
}

// CodeOf returns the taxonomy code of err.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrProtocolViolation):
		return CodeProtocolViolation
	case errors.Is(err, ErrAlreadyRegistered):
		return CodeAlreadyRegistered
	case errors.Is(err, ErrInvalidIdentifier):
		return CodeInvalidIdentifier
	}
	return CodeGeneric
}
