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

// Package reactor is the reference host application for a gwbridge session.
//
// A Reactor owns the frame pool, feeds outgoing frames from prioritized
// providers, dispatches incoming frames to consumers, runs the engine's
// worker requests and turns hooks into broadcast events. It drives the
// engine loop on its own goroutine between Start and Shutdown.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/srediag/gwbridge/adapter"
	"github.com/srediag/gwbridge/api"
	"github.com/srediag/gwbridge/bridge"
	"github.com/srediag/gwbridge/pkg/frame"
	"github.com/srediag/gwbridge/pkg/framepool"
	"github.com/srediag/gwbridge/pkg/health"
)

var (
	// ErrStartTimeout is returned when the engine loop does not start in time.
	ErrStartTimeout = errors.New("reactor: engine loop did not start in time")
	// ErrLoopAlive is returned when the engine loop outlives the shutdown timeout.
	ErrLoopAlive = errors.New("reactor: engine loop is still alive")
)

const livenessFactor = 3

// Identity reported before the engine assigns one.
const (
	defaultClientID  = "[AAAAAAAAAAAAAAAA]"
	defaultClientTag = "00000000000000000000000000000000"
)

// Options carries the non serializable dependencies of a Reactor.
type Options struct {
	// Logger receives reactor and engine log lines. Nop when nil.
	Logger *zap.Logger
	// BridgeLogOutput receives the bridge's internal diagnostics.
	// io.Discard when nil.
	BridgeLogOutput io.Writer
	// Registerer receives every collector. A private registry is used when nil.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Reactor implements api.Host.
type Reactor struct {
	conf      *Config
	bridge    *bridge.Bridge
	pool      *framepool.Pool
	log       *zap.Logger
	sink      *adapter.ZapSink
	events    *Dispatcher
	providers *providerQueue
	health    healthcheck.Handler
	gatherer  prometheus.Gatherer

	consumersMu      sync.RWMutex
	controlConsumers map[uint32]FrameConsumer
	dataConsumer     FrameConsumer

	hbMu  sync.Mutex
	hb    *backoff.ExponentialBackOff
	beats *health.Monitor

	mu         sync.Mutex
	lastState  string
	clientID   string
	clientTag  string
	proxy      ProxyConfig
	defaultCSR *CSR

	readyMu sync.Mutex
	ready   bool
	readyCh chan struct{}

	capsMu        sync.Mutex
	plugins       []Plugin
	capsCommitted bool

	started     atomic.Bool
	stopped     atomic.Bool
	loopStarted chan struct{}
	loopOnce    sync.Once
	done        chan struct{}
	released    chan struct{}
	runErr      error
}

var _ api.Host = (*Reactor)(nil)

// New builds a reactor and its bridge session on top of engine.
func New(engine api.Engine, conf *Config, opts Options) (*Reactor, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := VerifyConfig(conf); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Reactor{
		conf:             conf,
		log:              log.Named("reactor"),
		sink:             adapter.NewZapSink(log.Named("engine")),
		events:           NewDispatcher(),
		providers:        newProviderQueue(),
		controlConsumers: make(map[uint32]FrameConsumer),
		clientID:         defaultClientID,
		clientTag:        defaultClientTag,
		proxy:            conf.Proxy,
		defaultCSR:       NewCSRFromSubject(conf.CSR),
		beats:            health.NewMonitor(livenessFactor * conf.Heartbeat.Max),
		readyCh:          make(chan struct{}),
		loopStarted:      make(chan struct{}),
		done:             make(chan struct{}),
		released:         make(chan struct{}),
	}
	r.sink.SetDebug(conf.LogMask.Has(LogDebugGeneric))

	reg := opts.Registerer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, r.gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}

	r.hb = backoff.NewExponentialBackOff()
	r.hb.InitialInterval = conf.Heartbeat.Initial
	r.hb.MaxInterval = conf.Heartbeat.Max
	r.hb.Multiplier = conf.Heartbeat.Multiplier
	r.hb.RandomizationFactor = 0
	r.hb.MaxElapsedTime = 0
	r.hb.Reset()

	poolConf := conf.Pool
	poolConf.Registerer = reg
	pool, err := framepool.New(context.Background(), poolConf)
	if err != nil {
		return nil, err
	}
	r.pool = pool

	bc := bridge.DefaultConfig()
	bc.AppID = conf.AppID
	bc.AppIDSuffix = conf.AppIDSuffix
	bc.Platform = conf.Platform
	bc.VarDir = varDir(conf.VarDir)
	bc.DebugMode = bc.DebugMode || conf.DebugMode
	bc.WorkerPoolSize = conf.WorkerPoolSize
	bc.LogOutput = opts.BridgeLogOutput
	if bc.LogOutput == nil {
		bc.LogOutput = io.Discard
	}
	bc.Registerer = reg
	bc.Tracer = opts.Tracer
	bc.Meter = opts.Meter
	b, err := bridge.New(engine, r, bc)
	if err != nil {
		_ = pool.Close(context.Background())
		return nil, err
	}
	r.bridge = b

	r.health = healthcheck.NewHandler()
	r.health.AddLivenessCheck("engine-heartbeat", r.beats.LivenessCheck())
	r.health.AddReadinessCheck("gateway-ready", r.checkReady)
	return r, nil
}

func (r *Reactor) Bridge() *bridge.Bridge { return r.bridge }

func (r *Reactor) Pool() *framepool.Pool { return r.pool }

func (r *Reactor) Events() *Dispatcher { return r.events }

// Health returns the liveness and readiness checks.
func (r *Reactor) Health() healthcheck.Handler { return r.health }

// LastHeartbeat returns when the engine last called the heartbeat hook.
func (r *Reactor) LastHeartbeat() time.Time { return r.beats.Last() }

// Gatherer returns the registry holding the pool and bridge metrics.
func (r *Reactor) Gatherer() prometheus.Gatherer { return r.gatherer }

// Start initializes the session, applies the log mask and runs the engine
// loop on a new goroutine. It returns once the loop has started.
func (r *Reactor) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: reactor already started", bridge.ErrSessionState)
	}
	if err := r.bridge.Init(ctx); err != nil {
		close(r.done)
		return err
	}
	if r.conf.LogMask != 0 {
		if err := r.bridge.SetLogMask(uint64(r.conf.LogMask)); err != nil {
			r.log.Warn("log set mask", zap.Error(err))
		}
	}

	go r.run()

	timer := time.NewTimer(r.conf.StartTimeout)
	defer timer.Stop()
	select {
	case <-r.loopStarted:
		return nil
	case <-r.done:
		if r.runErr != nil {
			return r.runErr
		}
		return fmt.Errorf("%w: engine loop exited before starting", bridge.ErrSessionState)
	case <-timer.C:
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reactor) run() {
	defer close(r.done)
	defer r.beats.Stop()
	defer func() {
		if p := recover(); p != nil {
			r.runErr = fmt.Errorf("reactor: engine loop panicked: %v", p)
			r.log.Error("engine loop panicked", zap.Any("panic", p))
		}
	}()
	if err := r.bridge.Run(); err != nil {
		r.runErr = err
		r.log.Warn("engine loop returned", zap.Error(err))
	}
}

// Done is closed once the engine loop has returned.
func (r *Reactor) Done() <-chan struct{} { return r.done }

// Err returns the engine loop error after Done is closed.
func (r *Reactor) Err() error {
	select {
	case <-r.done:
		return r.runErr
	default:
		return nil
	}
}

// Shutdown stops the engine loop, waits up to the shutdown timeout for it
// and releases the session, the worker pool and the frame pool. When the loop
// outlives the timeout, ErrLoopAlive is returned and the release waits for
// the loop to exit, since the engine may still hold views into pool storage.
func (r *Reactor) Shutdown() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := r.bridge.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	alive := false
	if r.started.Load() {
		timer := time.NewTimer(r.conf.ShutdownTimeout)
		select {
		case <-r.done:
		case <-timer.C:
			errs = append(errs, ErrLoopAlive)
			alive = true
		}
		timer.Stop()
	}
	r.providers.close()
	r.setReady(false)
	if alive {
		r.log.Warn("engine loop outlived shutdown, release deferred", zap.Duration("timeout", r.conf.ShutdownTimeout))
		go func() {
			<-r.done
			if err := r.release(); err != nil {
				r.log.Warn("deferred release", zap.Error(err))
			}
		}()
		return errors.Join(errs...)
	}
	if err := r.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Released is closed once the worker pool and the frame pool are released.
func (r *Reactor) Released() <-chan struct{} { return r.released }

func (r *Reactor) release() error {
	defer close(r.released)
	var errs []error
	if err := r.bridge.Close(r.conf.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := r.pool.Close(context.Background()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RegisterFrameProvider queues p and tells the engine there is data to send.
// With single set, p is not queued twice.
func (r *Reactor) RegisterFrameProvider(p FrameProvider, single bool) error {
	if p == nil {
		return fmt.Errorf("%w: nil frame provider", bridge.ErrInvalidArgument)
	}
	if _, err := r.providers.push(p, single); err != nil {
		return err
	}
	return r.yield(api.YieldDataToSend)
}

// Yield wakes the engine loop. Transient return codes are ignored.
func (r *Reactor) Yield(code byte) error {
	return r.yield(code)
}

// Connect asks the engine to connect to the gateway.
func (r *Reactor) Connect() error { return r.yield(api.YieldConnect) }

// Disconnect closes the gateway connection.
func (r *Reactor) Disconnect() error { return r.yield(api.YieldDisconnect) }

// Reset drops the connection and returns the engine to idle.
func (r *Reactor) Reset() error { return r.yield(api.YieldReset) }

// RenewCertificate makes the engine request a new CSR.
func (r *Reactor) RenewCertificate() error { return r.yield(api.YieldRenewCert) }

func (r *Reactor) yield(code byte) error {
	err := r.bridge.Yield(rune(code))
	var ee *bridge.EngineError
	if errors.As(err, &ee) && ee.RC.Transient() {
		r.log.Debug("ignoring yield return code", zap.Int("rc", int(ee.RC)), zap.String("code", string(code)))
		return nil
	}
	return err
}

// SetProxy replaces the proxy applied when the engine starts connecting.
func (r *Reactor) SetProxy(p ProxyConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxy = p
}

// SetDefaultCSR replaces the attributes submitted on a CSR worker request.
func (r *Reactor) SetDefaultCSR(c *CSR) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultCSR = c
}

// State returns the last state string reported by the engine.
func (r *Reactor) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastState
}

func (r *Reactor) ClientID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientID
}

func (r *Reactor) ClientTag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientTag
}

// IsReady reports whether the client is signed in.
func (r *Reactor) IsReady() bool {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	return r.ready
}

// WaitReady blocks until the client is signed in or ctx is done.
func (r *Reactor) WaitReady(ctx context.Context) error {
	r.readyMu.Lock()
	ch := r.readyCh
	r.readyMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reactor) setReady(v bool) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	if r.ready == v {
		return
	}
	r.ready = v
	if v {
		close(r.readyCh)
	} else {
		r.readyCh = make(chan struct{})
	}
}

func (r *Reactor) checkReady() error {
	if !r.IsReady() {
		return fmt.Errorf("not signed in, state %q", r.State())
	}
	return nil
}

// traffic resets the heartbeat interval.
func (r *Reactor) traffic() {
	r.hbMu.Lock()
	r.hb.Reset()
	r.hbMu.Unlock()
}

func (r *Reactor) configureProxy() {
	r.mu.Lock()
	p := r.proxy
	r.mu.Unlock()
	if !p.Enabled() {
		return
	}
	r.log.Debug("reconfiguring proxy server", zap.String("host", p.Host), zap.String("port", p.Port))
	if err := r.bridge.ConfigureProxy(p.Host, p.Port); err != nil {
		r.log.Error("set proxy server", zap.Error(err))
	}
}

func (r *Reactor) giveBack(buf *frame.Buffer) {
	if err := r.pool.GiveBack(buf); err != nil {
		r.log.Warn("frame not given back to the pool", zap.Stringer("frame", buf), zap.Error(err))
	}
}
