// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xykasumi/grbld/internal/api"
	"github.com/xykasumi/grbld/internal/config"
	"github.com/xykasumi/grbld/internal/grbl"
	"github.com/xykasumi/grbld/internal/jobsched"
	"github.com/xykasumi/grbld/internal/metrics"
	"github.com/xykasumi/grbld/internal/store"
)

var (
	flagPort         string
	flagBaud         int
	flagAddr         string
	flagLogDir       string
	flagInitFile     string
	flagVerbose      bool
	flagDryRun       bool
	flagStreamMode   string
	flagPollInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to a Grbl controller and serve the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "serial port name (prompts if omitted and more than one is available)")
	serveCmd.Flags().IntVar(&flagBaud, "baud", 0, "serial port baud rate")
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address")
	serveCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "directory for session transcript logs")
	serveCmd.Flags().StringVar(&flagInitFile, "init-file", "", "init file path")
	serveCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	serveCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "synthesize acks instead of waiting on the wire")
	serveCmd.Flags().StringVar(&flagStreamMode, "stream-mode", "", "'character-counting' or 'incremental'")
	serveCmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "status poll interval (0 keeps the config/default value)")
}

// overrideFromFlags layers any explicitly-set CLI flags on top of a loaded
// config.Config, so a config file can provide defaults a flag then refines.
func overrideFromFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("baud") {
		cfg.Baud = flagBaud
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = flagAddr
	}
	if cmd.Flags().Changed("log-dir") {
		cfg.LogDir = flagLogDir
	}
	if cmd.Flags().Changed("init-file") {
		cfg.InitFile = flagInitFile
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flagDryRun
	}
	if cmd.Flags().Changed("stream-mode") {
		cfg.StreamMode = flagStreamMode
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = flagPollInterval
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	overrideFromFlags(cmd, cfg)

	if cfg.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if cfg.Port == "" {
		port, err := selectPort()
		if err != nil {
			return err
		}
		cfg.Port = port
	}

	logDirAbs, err := filepath.Abs(cfg.LogDir)
	if err != nil {
		return err
	}
	initFileAbs, err := filepath.Abs(cfg.InitFile)
	if err != nil {
		return err
	}
	initLines, err := store.ReadInitLines(initFileAbs)
	if err != nil {
		return err
	}

	streamMode := grbl.CharacterCounting
	if cfg.StreamMode == "incremental" {
		streamMode = grbl.Incremental
	}

	lines := store.NewLineDB()
	states := store.NewStateDB()
	ts := store.NewTSDB()
	logger := store.NewPayloadLogger(logDirAbs)
	defer logger.Close()

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	transport := grbl.NewSerialTransport(cfg.Port, cfg.Baud, cfg.PollInterval)
	driver := grbl.NewDriver(transport, nil, grbl.WithStreamMode(streamMode))
	jobs := jobsched.New(driver)
	defer jobs.Close()

	lineNum := 0
	recorder := func(ev grbl.Event) {
		switch e := ev.(type) {
		case grbl.ReadEvent:
			lineNum++
			lines.AddLine(lineNum, "up", e.Line)
			logger.AddLine(lineNum, "up", e.Line)
		case grbl.WriteEvent:
			lineNum++
			lines.AddLine(lineNum, "down", string(e.Bytes))
			logger.AddLine(lineNum, "down", string(e.Bytes))
		case grbl.StateUpdateEvent:
			states.Add("status", driver.Snapshot(), time.Now())
		case grbl.RxBufferPercentEvent:
			ts.Insert("rx_fill_percent", time.Now(), float64(e.Percent))
		case grbl.FeedChangeEvent:
			ts.Insert("feed_current", time.Now(), e.Feed)
		}
		met.Observe(ev)
		jobs.NotifyEvent(ev)
	}
	driver.SetHandler(recorder)
	driver.SetDryRun(cfg.DryRun)

	if err := driver.Connect(); err != nil {
		return err
	}
	defer driver.Disconnect()

	if len(initLines) > 0 {
		driver.Stream(initLines)
	}

	impl := &api.Server{
		Driver:   driver,
		Jobs:     jobs,
		Lines:    lines,
		TS:       ts,
		InitPath: initFileAbs,
	}
	router := api.NewRouter(impl)

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server started", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
