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
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultWorkerPoolSize = 2

// Config is used to tune a bridge session.
type Config struct {
	// AppID identifies the application towards the gateway.
	AppID string
	// AppIDSuffix is optional. The empty string is passed to the engine as absent.
	AppIDSuffix string
	Platform    string
	// VarDir is where the engine keeps its persistent state.
	VarDir string

	// DebugMode turns handoff protocol violations into panics. The process
	// env `GWBRIDGE_DEBUG_MODE` enables it by default.
	DebugMode bool

	// WorkerPoolSize bounds the number of engine worker jobs running at once.
	WorkerPoolSize int

	// LogOutput receives the bridge's internal log, os.Stdout if nil.
	LogOutput io.Writer

	// Registerer receives the bridge's prometheus collectors. A private
	// registry is created when nil.
	Registerer prometheus.Registerer
	Meter      metric.Meter
	Tracer     trace.Tracer
}

// DefaultConfig returns the default config. AppID and VarDir still have to be set.
func DefaultConfig() *Config {
	return &Config{
		Platform:       runtime.GOOS,
		DebugMode:      envDebugMode,
		WorkerPoolSize: defaultWorkerPoolSize,
		LogOutput:      os.Stdout,
	}
}

// VerifyConfig is used to verify the sanity of configuration.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidArgument)
	}
	if config.AppID == "" {
		return fmt.Errorf("%w: app id is required", ErrInvalidArgument)
	}
	if config.Platform == "" {
		return fmt.Errorf("%w: platform is required", ErrInvalidArgument)
	}
	if config.VarDir == "" {
		return fmt.Errorf("%w: var dir is required", ErrInvalidArgument)
	}
	for name, v := range map[string]string{
		"app id":        config.AppID,
		"app id suffix": config.AppIDSuffix,
		"platform":      config.Platform,
		"var dir":       config.VarDir,
	} {
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("%w: %s contains NUL", ErrInvalidArgument, name)
		}
	}
	if config.WorkerPoolSize <= 0 {
		return fmt.Errorf("%w: worker pool size must be positive, got %d", ErrInvalidArgument, config.WorkerPoolSize)
	}
	return nil
}
