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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "frame_capacity: 16384")
	assert.Contains(t, out, "max: 5s")

	path := filepath.Join(t.TempDir(), "gwbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_id: com.example.cli\n"), 0o600))
	out, err = execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "app_id: com.example.cli")

	_, err = execute(t, "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStateCommand(t *testing.T) {
	out, err := execute(t, "state", "E--YN-")
	require.NoError(t, err)
	assert.Equal(t, "ESTABLISHED|PPK_READY|GWCONN_SIGNED_IN| ready=true\n", out)

	_, err = execute(t, "state")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run",
		"--app-id", "com.example.cli",
		"--var-dir", t.TempDir(),
		"--duration", "500ms",
		"--connect",
		"--frames", "2",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "ready: client [")
	assert.Contains(t, out, "sent 2 frames")
}

func TestRunRequiresAppID(t *testing.T) {
	_, err := execute(t, "run", "--var-dir", t.TempDir(), "--duration", "100ms")
	assert.Error(t, err)
}
