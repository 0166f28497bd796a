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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srediag/gwbridge/adapter"
	"github.com/srediag/gwbridge/internal/simengine"
	"github.com/srediag/gwbridge/pkg/frame"
	"github.com/srediag/gwbridge/reactor"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gwbridge-sim",
		Short:         "Run a gateway bridge session against a simulated engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML reactor config")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newStateCommand())
	return cmd
}

func (o *rootOptions) loadConfig() (*reactor.Config, error) {
	if o.configPath == "" {
		return reactor.DefaultConfig(), nil
	}
	return reactor.LoadConfig(o.configPath)
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type runOptions struct {
	*rootOptions
	appID    string
	varDir   string
	httpAddr string
	duration time.Duration
	connect  bool
	frames   int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a session, provision the client and run until interrupted",
		Long: `Start a reactor session on top of the simulated engine.

The engine asks for a key pair and a CSR, signs the client in and then idles,
calling the heartbeat. With --http the liveness, readiness and metrics
endpoints are served.

Example:
  gwbridge-sim run --app-id com.example.app --var-dir /tmp/app --connect --frames 3
  gwbridge-sim run -c gwbridge.yaml --http :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.appID, "app-id", "", "application id, overrides the config")
	cmd.Flags().StringVar(&opts.varDir, "var-dir", "", "state directory, overrides the config")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "address for the health and metrics endpoints")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long, 0 waits for a signal")
	cmd.Flags().BoolVar(&opts.connect, "connect", false, "connect to the gateway once ready")
	cmd.Flags().IntVar(&opts.frames, "frames", 0, "number of frames to send once connected")
	return cmd
}

func runSession(ctx context.Context, opts *runOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.appID != "" {
		conf.AppID = opts.appID
	}
	if opts.varDir != "" {
		conf.VarDir = opts.varDir
	}
	if opts.verbose {
		conf.LogMask |= reactor.LogDebugGeneric
	}

	log, err := opts.logger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	engine := simengine.New(simengine.Options{Provision: true})
	tracer, meter := adapter.GlobalTelemetry()
	reg := prometheus.NewRegistry()
	r, err := reactor.New(engine, conf, reactor.Options{
		Logger:     log,
		Registerer: reg,
		Tracer:     tracer,
		Meter:      meter,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Shutdown(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	if opts.httpAddr != "" {
		stop, err := serveHTTP(opts.httpAddr, adapter.NewHTTPHandler(r.Health(), reg), log)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if opts.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if err := r.Start(ctx); err != nil {
		return err
	}
	if err := r.CommitCapabilities(); err != nil {
		log.Warn("commit capabilities", zap.Error(err))
	}
	if err := r.WaitReady(ctx); err != nil {
		return ignoreDone(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ready: client %s state %s\n", r.ClientID(), reactor.TranslateState(r.State()))

	if opts.connect {
		if err := r.Connect(); err != nil {
			return err
		}
	}
	if opts.frames > 0 {
		if err := r.RegisterFrameProvider(newCounterProvider(opts.frames), true); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case <-r.Done():
		return r.Err()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d frames\n", len(engine.Sent()))
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func serveHTTP(addr string, h http.Handler, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
		}
	}()
	log.Info("serving health and metrics", zap.Stringer("addr", ln.Addr()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// counterProvider sends n numbered data frames.
type counterProvider struct {
	mu   sync.Mutex
	next int
	n    int
}

func newCounterProvider(n int) *counterProvider { return &counterProvider{n: n} }

func (p *counterProvider) BuildFrame(r *reactor.Reactor) (*frame.Buffer, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= p.n {
		return nil, false, nil
	}
	buf, err := r.Pool().Borrow()
	if err != nil {
		return nil, true, err
	}
	payload := fmt.Sprintf("frame %d", p.next)
	hdr, err := buf.Reserve(reactor.HeaderSize)
	if err != nil {
		_ = r.Pool().GiveBack(buf)
		return nil, false, err
	}
	reactor.PutFrameHeader(hdr, reactor.FrameHeader{ID: 1, Length: len(payload)})
	if _, err := buf.Write([]byte(payload)); err != nil {
		_ = r.Pool().GiveBack(buf)
		return nil, false, err
	}
	p.next++
	return buf, p.next < p.n, nil
}

func (p *counterProvider) FrameProviderPriority() int { return 0 }

func newConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := root.loadConfig()
			if err != nil {
				return err
			}
			out, err := conf.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state <state-string>",
		Short: "Spell out an engine state string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready=%t\n", reactor.TranslateState(args[0]), reactor.Ready(args[0]))
			return nil
		},
	}
}
