// scbridge translates control-surface OSC commands into SuperCollider
// server messages. Live commands are scheduled on scsynth with a small
// latency; nrt_record envelopes are compiled into score scripts and
// rendered offline by sclang.
//
// The engine processes are expected to be running. scbridge waits for
// sclang to report readiness before it accepts commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/chabad360/scbridge/internal/bridge"
	"github.com/chabad360/scbridge/internal/config"
	"github.com/chabad360/scbridge/internal/engine"
	"github.com/chabad360/scbridge/internal/metrics"
	"github.com/chabad360/scbridge/internal/nrt"
	"github.com/chabad360/scbridge/osc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logLevel, logFormat, listen string

	flagSet := pflag.NewFlagSet("scbridge", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "configuration file (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	flagSet.StringVar(&logFormat, "log-format", "", "override log format (text, json)")
	flagSet.StringVarP(&listen, "listen", "l", "", "override the UDP address commands are received on")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if listen != "" {
		cfg.Listen = listen
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	sampler := bridge.DefaultSampler
	if cfg.SamplerSynthdef != "" {
		data, err := os.ReadFile(cfg.SamplerSynthdef)
		if err != nil {
			return errors.Wrap(err, "read sampler synth definition")
		}
		sampler = string(data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "listen", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
	}

	eng, err := engine.Dial(engine.Addrs{
		Reply:       cfg.Engine.Reply,
		Scsynth:     cfg.Engine.Scsynth,
		Sclang:      cfg.Engine.Sclang,
		Application: cfg.Engine.Application,
	}, engine.WithLatency(cfg.Engine.Latency.Std()), engine.WithLogger(logger), engine.WithMetrics(m))
	if err != nil {
		return err
	}
	defer eng.Close()

	logger.Info("waiting for engine", "reply", eng.LocalAddr().String(), "timeout", cfg.Engine.ReadyTimeout.Std())
	if err := eng.WaitReady(cfg.Engine.ReadyTimeout.Std()); err != nil {
		return errors.Wrap(err, "engine did not become ready")
	}

	opts := nrt.OptionsFromConfig(cfg.NRT)
	opts.Logger = logger
	opts.Metrics = m
	compiler, err := nrt.New(eng, sampler, opts)
	if err != nil {
		return err
	}

	interp := bridge.New(eng, compiler, bridge.Options{
		Sampler:    sampler,
		BPM:        cfg.BPM,
		FunnelTags: cfg.FunnelTags,
		ServerName: cfg.Engine.ServerName,
		Logger:     logger,
		Metrics:    m,
	})
	if err := interp.LoadSampler(); err != nil {
		return errors.Wrap(err, "load sampler")
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Listen)
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		conn.Close()
	}()

	logger.Info("bridge ready", "listen", conn.LocalAddr().String(), "bpm", interp.BPM())
	server := &osc.Server{Handler: interp, Logger: logger}
	return server.Serve(conn)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, errors.Errorf("unknown log format %q", cfg.Format)
}
