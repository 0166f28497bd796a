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
	"errors"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// ErrCapabilitiesCommitted is returned once capabilities have been stored.
var ErrCapabilitiesCommitted = errors.New("reactor: capabilities are already committed")

// Platform capability keys.
const (
	CapPlatformManufacturer = "plm"
	CapPlatformModel        = "plM"
	CapPlatformProduct      = "plp"
)

const capSeparator = '\x1f'

// Capability is one key/value pair announced to the gateway.
type Capability struct {
	Key   string
	Value string
}

// Plugin contributes capabilities.
type Plugin interface {
	Capabilities() []Capability
}

// platformInfo is replaced in tests.
var platformInfo = host.Info

// RegisterPlugin adds p to the capability sources.
func (r *Reactor) RegisterPlugin(p Plugin) error {
	r.capsMu.Lock()
	defer r.capsMu.Unlock()
	if r.capsCommitted {
		return ErrCapabilitiesCommitted
	}
	r.plugins = append(r.plugins, p)
	return nil
}

// CommitCapabilities stores the plugin capabilities and the platform
// description with the engine. It succeeds at most once.
func (r *Reactor) CommitCapabilities() error {
	r.capsMu.Lock()
	defer r.capsMu.Unlock()
	if r.capsCommitted {
		return ErrCapabilitiesCommitted
	}

	var caps []Capability
	for _, p := range r.plugins {
		caps = append(caps, p.Capabilities()...)
	}
	caps = append(caps, r.platformCapabilities()...)

	entries := make([]string, 0, len(caps))
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, c := range caps {
		buf.Reset()
		_, _ = buf.WriteString(c.Key)
		_ = buf.WriteByte(capSeparator)
		_, _ = buf.WriteString(c.Value)
		entries = append(entries, buf.String())
	}

	if err := r.bridge.StoreCharacteristics(entries); err != nil {
		r.log.Error("capabilities store", zap.Error(err))
		return err
	}
	r.capsCommitted = true
	return nil
}

func (r *Reactor) platformCapabilities() []Capability {
	info, err := platformInfo()
	if err != nil || info == nil {
		r.log.Warn("platform info unavailable", zap.Error(err))
		return nil
	}
	return []Capability{
		{Key: CapPlatformManufacturer, Value: info.Platform},
		{Key: CapPlatformModel, Value: info.PlatformVersion},
		{Key: CapPlatformProduct, Value: info.KernelArch},
	}
}
