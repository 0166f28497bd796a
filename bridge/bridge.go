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

// Package bridge is the boundary between a native gateway engine and the host
// application.
//
// A Bridge is one session. It implements api.Callbacks for the engine: it
// arbitrates the single write slot and single read slot through which frame
// buffers are lent to the engine, forwards hooks and worker requests to the
// host and guards the heartbeat contract. Towards the host it exposes the
// engine's lifecycle and worker calls with argument checking.
//
// Engine callbacks run on the engine loop goroutine and never concurrently;
// the slot mutex is never held while calling into the host.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/pkg/lifecycle"
)

const instrumentationName = "github.com/srediag/gwbridge/bridge"

// Bridge is one engine session.
type Bridge struct {
	conf   *Config
	engine api.Engine
	host   api.Host
	handle string
	log    *logger
	hooks  *HookTable

	mu        sync.Mutex
	slots     [2]slot
	lastToken api.Token

	state    lifecycle.Machine
	shutdown atomic.Bool
	runDone  chan struct{}
	runOnce  sync.Once

	workers  *ants.Pool
	metrics  *metrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
	jobs     metric.Int64Counter
}

// New creates a session on top of engine for host. A nil config means
// DefaultConfig, which still lacks AppID and VarDir and thus fails VerifyConfig.
func New(engine api.Engine, host api.Host, config *Config) (*Bridge, error) {
	if engine == nil || host == nil {
		return nil, fmt.Errorf("%w: engine and host are required", ErrInvalidArgument)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}

	b := &Bridge{
		conf:    config,
		engine:  engine,
		host:    host,
		log:     newLogger("gwbridge", config.LogOutput),
		hooks:   NewHookTable(),
		runDone: make(chan struct{}),
	}

	reg := config.Registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, b.gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		b.gatherer = g
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	b.metrics = m

	b.tracer = config.Tracer
	if b.tracer == nil {
		b.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := config.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if b.jobs, err = meter.Int64Counter("gwbridge.worker.jobs",
		metric.WithDescription("Worker jobs dispatched to the engine.")); err != nil {
		return nil, fmt.Errorf("gwbridge: create job counter: %w", err)
	}

	b.workers, err = ants.NewPool(config.WorkerPoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			b.log.errorf("worker job panicked: %v", p)
		}))
	if err != nil {
		return nil, fmt.Errorf("gwbridge: create worker pool: %w", err)
	}

	b.handle = registerSession(b)
	return b, nil
}

// Handle is the opaque identifier native trampolines use to find the session.
func (b *Bridge) Handle() string { return b.handle }

// Gatherer returns the registry holding the bridge metrics, nil when the
// configured Registerer cannot be gathered.
func (b *Bridge) Gatherer() prometheus.Gatherer { return b.gatherer }

// LifecycleState returns the session lifecycle state.
func (b *Bridge) LifecycleState() lifecycle.State { return b.state.Load() }

// Hooks exposes the hook table the engine's hook trampolines dispatch through.
func (b *Bridge) Hooks() *HookTable { return b.hooks }

// Init initializes the engine and registers every lifecycle hook. Any
// failure is fatal to the session: it moves to the failed state and Run
// refuses to start.
func (b *Bridge) Init(ctx context.Context) (err error) {
	_, span := b.tracer.Start(ctx, "gwbridge.init", trace.WithAttributes(
		attribute.String("gwbridge.app_id", b.conf.AppID),
		attribute.String("gwbridge.platform", b.conf.Platform),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !b.state.Transition(lifecycle.New, lifecycle.Initialized) {
		return fmt.Errorf("%w: init in state %s", ErrSessionState, b.state.Load())
	}
	if err = b.init(); err != nil {
		b.state.Store(lifecycle.Failed)
		b.log.errorf("init failed: %v", err)
		return err
	}
	b.log.infof("session %s initialized for %s", b.handle, b.conf.AppID)
	return nil
}

func (b *Bridge) init() error {
	params := api.InitParams{
		AppID:       b.conf.AppID,
		AppIDSuffix: b.conf.AppIDSuffix,
		Platform:    b.conf.Platform,
		VarDir:      b.conf.VarDir,
		Handle:      b.handle,
	}
	if err := checkRC("init", b.engine.Init(params, b)); err != nil {
		return err
	}
	for _, id := range api.Hooks {
		id := id
		if err := b.hooks.Register(id, b.hostHook(id)); err != nil {
			return err
		}
		if err := checkRC("hook register "+id.String(), b.engine.HookRegister(id, func() { b.fireHook(id) })); err != nil {
			return err
		}
	}
	return nil
}

// hostHook maps a hook identifier to the host callback it triggers.
func (b *Bridge) hostHook(id api.HookID) func() {
	switch id {
	case api.HookLoopStarted:
		return b.host.LoopStarted
	case api.HookConnectionReset:
		return b.host.ConnectionReset
	case api.HookConnectionEstablished:
		return b.host.ConnectionEstablished
	case api.HookStateChanged:
		return func() { b.host.StateChanged(b.State()) }
	case api.HookClientIDChanged:
		return func() { b.host.ClientIDChanged(b.engine.ClientID(), b.engine.ClientTag()) }
	}
	return nil
}

func (b *Bridge) fireHook(id api.HookID) {
	b.metrics.hooks.WithLabelValues(id.String()).Inc()
	b.log.debugf("hook %s", id)
	if !b.hooks.Fire(id) {
		b.log.warnf("hook %s fired without a callback", id)
	}
}

// Run drives the engine loop on the calling goroutine until Shutdown. Once
// the loop has returned, buffers still lent to the engine are handed back
// to the host.
func (b *Bridge) Run() error {
	if !b.state.Transition(lifecycle.Initialized, lifecycle.Running) {
		st := b.state.Load()
		if st == lifecycle.New {
			return ErrNotInitialized
		}
		return fmt.Errorf("%w: run in state %s", ErrSessionState, st)
	}
	defer b.finishRun()
	err := checkRC("run", b.engine.Run())
	b.drain()
	b.state.Store(lifecycle.Stopped)
	if err != nil {
		b.log.warnf("engine loop returned: %v", err)
	}
	return err
}

// Shutdown asks the engine to stop. Run returns once the loop has exited.
// A session that never ran releases its slots immediately.
func (b *Bridge) Shutdown() error {
	if !b.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	switch b.state.Load() {
	case lifecycle.New, lifecycle.Failed:
		b.state.Store(lifecycle.Stopped)
		b.finishRun()
		return nil
	case lifecycle.Initialized:
		err := checkRC("shutdown", b.engine.Shutdown())
		if b.state.Transition(lifecycle.Initialized, lifecycle.Stopped) {
			b.drain()
			b.finishRun()
		}
		return err
	}
	return checkRC("shutdown", b.engine.Shutdown())
}

func (b *Bridge) finishRun() {
	b.runOnce.Do(func() { close(b.runDone) })
}

// Wait blocks until Run has returned, or the session was shut down without
// running, or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	select {
	case <-b.runDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the worker pool and forgets the session handle. It waits
// up to timeout for running worker jobs.
func (b *Bridge) Close(timeout time.Duration) error {
	unregisterSession(b.handle)
	if b.workers.IsClosed() {
		return nil
	}
	return b.workers.ReleaseTimeout(timeout)
}

// Yield wakes the engine loop with an 8-bit code.
func (b *Bridge) Yield(code rune) error {
	if code < 0 || code > 0xFF {
		return fmt.Errorf("%w: yield code %#x exceeds 8 bits", ErrInvalidArgument, code)
	}
	return checkRC("yield", b.engine.Yield(byte(code)))
}

// State returns the engine state string, at most api.StateBufSize bytes.
func (b *Bridge) State() string {
	var buf [api.StateBufSize]byte
	b.engine.State(&buf)
	return goString(buf[:])
}

func (b *Bridge) ClientID() string { return b.engine.ClientID() }

func (b *Bridge) ClientTag() string { return b.engine.ClientTag() }

// SetLogMask passes the diagnostic bitmask to the engine verbatim.
func (b *Bridge) SetLogMask(mask uint64) error {
	return checkRC("log set mask", b.engine.LogSetMask(mask))
}

// Time returns the engine loop clock. Safe from any goroutine.
func (b *Bridge) Time() float64 { return b.engine.Time() }

// StoreCharacteristics hands "key\x1fvalue" entries to the engine.
func (b *Bridge) StoreCharacteristics(entries []string) error {
	packed, err := packStrings(entries)
	if err != nil {
		return err
	}
	return checkRC("characteristics store", b.engine.CharacteristicsStore(packed))
}
