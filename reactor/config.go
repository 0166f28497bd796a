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

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srediag/gwbridge/bridge"
	"github.com/srediag/gwbridge/pkg/framepool"
)

// VarDirSuffix is appended to the configured state directory.
const VarDirSuffix = ".gwbridge"

const (
	defaultStartTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultHeartbeatInitial    = time.Second
	defaultHeartbeatMax        = 5 * time.Second
	defaultHeartbeatMultiplier = 2.0
)

// HeartbeatConfig bounds the interval the reactor asks the engine to wait
// between heartbeats. The interval starts at Initial, grows by Multiplier
// while the connection is idle and is reset by frame traffic.
type HeartbeatConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// ProxyConfig is applied every time the engine starts connecting.
type ProxyConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Enabled reports whether both host and port are set.
func (p ProxyConfig) Enabled() bool { return p.Host != "" && p.Port != "" }

// SubjectConfig holds the default CSR subject.
type SubjectConfig struct {
	Country            string `yaml:"country"`
	State              string `yaml:"state"`
	Locality           string `yaml:"locality"`
	Organization       string `yaml:"organization"`
	OrganizationalUnit string `yaml:"organizational_unit"`
	CommonName         string `yaml:"common_name"`
	Surname            string `yaml:"surname"`
	GivenName          string `yaml:"given_name"`
	Email              string `yaml:"email"`
	UniqueIdentifier   string `yaml:"unique_identifier"`
	Description        string `yaml:"description"`
}

// Config is the reactor configuration. It is loadable from YAML.
type Config struct {
	AppID          string `yaml:"app_id"`
	AppIDSuffix    string `yaml:"app_id_suffix"`
	Platform       string `yaml:"platform"`
	VarDir         string `yaml:"var_dir"`
	DebugMode      bool   `yaml:"debug_mode"`
	WorkerPoolSize int    `yaml:"worker_pool_size"`
	// LogMask is passed to the engine after init. DebugGeneric also turns
	// on debug lines on the host log channel.
	LogMask LogFlag `yaml:"log_mask"`

	Pool      framepool.Config `yaml:"pool"`
	Heartbeat HeartbeatConfig  `yaml:"heartbeat"`
	Proxy     ProxyConfig      `yaml:"proxy"`
	CSR       SubjectConfig    `yaml:"csr"`

	StartTimeout    time.Duration `yaml:"start_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default config. AppID and VarDir still have to be set.
func DefaultConfig() *Config {
	return &Config{
		Platform:       runtime.GOOS,
		WorkerPoolSize: 2,
		Pool:           framepool.DefaultConfig(),
		Heartbeat: HeartbeatConfig{
			Initial:    defaultHeartbeatInitial,
			Max:        defaultHeartbeatMax,
			Multiplier: defaultHeartbeatMultiplier,
		},
		StartTimeout:    defaultStartTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reactor: read config: %w", err)
	}
	conf := DefaultConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("reactor: parse config %s: %w", path, err)
	}
	return conf, nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// VerifyConfig checks the reactor specific settings. The bridge settings are
// checked again by bridge.VerifyConfig when the session is created.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil config", bridge.ErrInvalidArgument)
	}
	hb := c.Heartbeat
	if hb.Initial <= 0 || hb.Max < hb.Initial || hb.Multiplier < 1 {
		return fmt.Errorf("%w: invalid heartbeat initial=%s max=%s multiplier=%v",
			bridge.ErrInvalidArgument, hb.Initial, hb.Max, hb.Multiplier)
	}
	if c.StartTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: start and shutdown timeouts must be positive", bridge.ErrInvalidArgument)
	}
	if (c.Proxy.Host == "") != (c.Proxy.Port == "") {
		return fmt.Errorf("%w: proxy needs both host and port", bridge.ErrInvalidArgument)
	}
	return nil
}

// varDir appends VarDirSuffix to dir unless it is already there.
func varDir(dir string) string {
	if dir == "" {
		return ""
	}
	dir = filepath.Clean(dir)
	if strings.HasSuffix(dir, VarDirSuffix) {
		return dir
	}
	return dir + VarDirSuffix
}
