// cambang-demo wires a Core to the synthetic provider and drives it
// through a short scripted session: engage a device, start a preview
// stream, trigger a still capture. It then keeps running until SIGINT or
// SIGTERM, when it shuts the core down. It exists to exercise the public
// API end to end without real camera hardware.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cambang/cambang"
	"github.com/cambang/cambang/fourcc"
	"github.com/cambang/cambang/internal/clock"
	"github.com/cambang/cambang/internal/config"
	"github.com/cambang/cambang/internal/provider/synthetic"
	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

const defaultConfigPath = "config/cambang.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	clk := clock.System()
	cam := synthetic.New(clk, []provider.Endpoint{
		{HardwareID: "cam0", Name: "synthetic front"},
		{HardwareID: "cam1", Name: "synthetic rear"},
	})

	core := cambang.New(cfg, cam, cambang.WithClock(clk), cambang.WithLogger(logger))
	core.Subscribe(logSnapshot(logger, core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- core.Run(ctx) }()

	go runScript(logger, core)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("core stopped with error", "error", err)
			os.Exit(1)
		}
		logger.Info("core stopped")
		return
	}

	if err := core.Shutdown(); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cambang-demo stopped cleanly")
}

// runScript exercises a handful of the public API calls against the
// synthetic provider so a snapshot observer has something to log.
func runScript(logger *slog.Logger, core *cambang.Core) {
	time.Sleep(50 * time.Millisecond)

	instanceID, err := core.EngageDevice("cam0")
	if err != nil {
		logger.Error("engage_device failed", "error", err)
		return
	}
	logger.Info("engaged device", "instance_id", instanceID)

	streamID, err := core.CreateStream(instanceID, model.StreamProfile{
		Intent:       model.IntentPreview,
		Width:        1280,
		Height:       720,
		FormatFourCC: uint32(fourcc.NV12),
		TargetFPSMin: 15,
		TargetFPSMax: 30,
	}, false)
	if err != nil {
		logger.Error("create_stream failed", "error", err)
		return
	}
	logger.Info("created stream", "stream_id", streamID)

	if err := core.StartStream(streamID); err != nil {
		logger.Error("start_stream failed", "error", err)
		return
	}

	time.Sleep(50 * time.Millisecond)

	captureID, err := core.TriggerDeviceCapture(instanceID)
	if err != nil {
		logger.Error("trigger_capture failed", "error", err)
		return
	}
	logger.Info("triggered capture", "capture_id", captureID)
}

func logSnapshot(logger *slog.Logger, core *cambang.Core) cambang.Observer {
	return func(gen, topologyGen uint64) {
		snap := core.Snapshot()
		logger.Debug("snapshot published",
			"gen", gen,
			"topology_gen", topologyGen,
			"devices", len(snap.Devices),
			"streams", len(snap.Streams),
			"rigs", len(snap.Rigs),
		)
	}
}
