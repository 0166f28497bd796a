/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

type logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	level        atomic.Int32
	envDebugMode = false

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level.Store(levelWarn)
	if s := os.Getenv("GWBRIDGE_LOG_LEVEL"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= levelTrace && n <= levelNoPrint {
			level.Store(int32(n))
		}
	}

	if os.Getenv("GWBRIDGE_DEBUG_MODE") != "" {
		envDebugMode = true
	}
}

// SetLogLevel changes the level of the bridge's internal logger: 0 trace,
// 1 debug, 2 info, 3 warn (default), 4 error, 5 silent.
// The process env `GWBRIDGE_LOG_LEVEL` sets the initial level.
func SetLogLevel(l int) {
	if l >= levelTrace && l <= levelNoPrint {
		level.Store(int32(l))
	}
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stdout
	}
	return &logger{
		name:      name,
		out:       out,
		callDepth: 4,
	}
}

func (l *logger) enabled(lv int) bool {
	return int(level.Load()) <= lv
}

func (l *logger) printf(lv int, format string, a ...interface{}) {
	if !l.enabled(lv) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "gwbridge logger: %v\n", err)
	}
}

func (l *logger) errorf(format string, a ...interface{}) { l.printf(levelError, format, a...) }

func (l *logger) warnf(format string, a ...interface{}) { l.printf(levelWarn, format, a...) }

func (l *logger) infof(format string, a ...interface{}) { l.printf(levelInfo, format, a...) }

func (l *logger) debugf(format string, a ...interface{}) { l.printf(levelDebug, format, a...) }

func (l *logger) tracef(format string, a ...interface{}) { l.printf(levelTrace, format, a...) }

func (l *logger) prefix(lv int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
	return buf.String()
}

func (l *logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
