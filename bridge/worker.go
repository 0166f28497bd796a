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
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/srediag/gwbridge/api"
)

// SocketConfig describes the socket the engine should open towards the gateway.
type SocketConfig struct {
	Port     int
	Family   api.Family
	Type     api.SocketType
	Protocol int
	// PeerAddress and PeerPort are optional; empty means absent.
	PeerAddress string
	PeerPort    string
}

// GenerateKeypair runs the engine's key pair generation on the calling
// goroutine. Completion is announced through hooks, not by the return.
func (b *Bridge) GenerateKeypair() {
	_ = b.runJob(context.Background(), api.WorkerKeypair, func() error {
		b.engine.KeypairWorker()
		return nil
	})
}

// GenerateCSR submits name/value entries for certificate signing request
// generation. The list is copied into a NUL terminated array; order is kept.
func (b *Bridge) GenerateCSR(names []string) error {
	entries, err := packStrings(names)
	if err != nil {
		return err
	}
	return b.runJob(context.Background(), api.WorkerCSR, func() error {
		return checkRC("csr worker", b.engine.CSRWorker(entries))
	})
}

// DispatchKeypair runs GenerateKeypair on the worker pool.
func (b *Bridge) DispatchKeypair() error {
	return b.submit(api.WorkerKeypair, func() { b.GenerateKeypair() })
}

// DispatchCSR checks names and runs the CSR worker on the worker pool.
// Engine errors are reported on the log channel.
func (b *Bridge) DispatchCSR(names []string) error {
	entries, err := packStrings(names)
	if err != nil {
		return err
	}
	return b.submit(api.WorkerCSR, func() {
		err := b.runJob(context.Background(), api.WorkerCSR, func() error {
			return checkRC("csr worker", b.engine.CSRWorker(entries))
		})
		if err != nil {
			b.log.errorf("csr worker: %v", err)
			b.host.LogMessage(api.LogError, err.Error())
		}
	})
}

func (b *Bridge) submit(worker api.WorkerID, job func()) error {
	if err := b.workers.Submit(job); err != nil {
		b.metrics.workerJobs.WithLabelValues(worker.String(), "rejected").Inc()
		return fmt.Errorf("gwbridge: dispatch %s: %w", worker, err)
	}
	return nil
}

func (b *Bridge) runJob(ctx context.Context, worker api.WorkerID, fn func() error) error {
	ctx, span := b.tracer.Start(ctx, "gwbridge.worker."+worker.String())
	defer span.End()

	err := fn()
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	b.metrics.workerJobs.WithLabelValues(worker.String(), result).Inc()
	b.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worker", worker.String()),
		attribute.String("result", result),
	))
	return err
}

// ConfigureProxy points the engine at a proxy server.
func (b *Bridge) ConfigureProxy(host, port string) error {
	h, err := cString(host, false)
	if err != nil {
		return err
	}
	p, err := cString(port, false)
	if err != nil {
		return err
	}
	return checkRC("set proxy server worker", b.engine.SetProxyServerWorker(h, p))
}

// ConfigureSocket validates the family and type codes before anything
// reaches the engine.
func (b *Bridge) ConfigureSocket(sc SocketConfig) error {
	if !sc.Family.Valid() {
		b.log.errorf("unknown/invalid domain at socket configure: %q", byte(sc.Family))
		return fmt.Errorf("%w: socket family %q", ErrInvalidArgument, byte(sc.Family))
	}
	if !sc.Type.Valid() {
		b.log.errorf("unknown/invalid type at socket configure: %q", byte(sc.Type))
		return fmt.Errorf("%w: socket type %q", ErrInvalidArgument, byte(sc.Type))
	}
	addr, err := cString(sc.PeerAddress, true)
	if err != nil {
		return err
	}
	port, err := cString(sc.PeerPort, true)
	if err != nil {
		return err
	}
	return checkRC("socket configure worker",
		b.engine.SocketConfigureWorker(sc.Port, sc.Family, sc.Type, sc.Protocol, addr, port))
}
