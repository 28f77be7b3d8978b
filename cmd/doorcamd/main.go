// Command doorcamd runs the door camera daemon: camera capture, motion
// analysis, event recording, MJPEG streaming and the local display, all
// wired together by internal/orchestrator.
//
// Flag parsing, structured logging setup, and signal-to-shutdown wiring
// follow References/orion-prototipe/cmd/oriond/main.go: stdlib flag,
// slog.NewJSONHandler set as the process default, os/signal watching
// SIGINT/SIGTERM, a timed Shutdown call after the run loop exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doorcam/doorcamd/internal/config"
	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/orchestrator"
)

const defaultConfigPath = "config/doorcam.yaml"

// Exit codes per spec.md §6 "CLI".
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfigError = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	logLevel := slog.LevelInfo
	if flags.debug {
		logLevel = slog.LevelDebug
	} else if flags.verbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error("doorcamd: failed to load configuration", "error", err)
		return exitConfigError
	}
	if flags.debug {
		cfg.Debug = true
	}

	if flags.validateConfig {
		logger.Info("doorcamd: configuration is valid", "config", flags.configPath)
		return exitSuccess
	}
	if flags.printConfig {
		printConfig(cfg)
		return exitSuccess
	}

	logger.Info("doorcamd: starting",
		"config", flags.configPath,
		"debug", flags.debug,
		"enable_keyboard", flags.enableKeyboard,
	)

	orch := orchestrator.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- orch.Run(ctx)
	}()

	interrupted := false
	select {
	case sig := <-sigChan:
		logger.Info("doorcamd: received shutdown signal", "signal", sig.String())
		orch.Bus().Publish(eventbus.Event{Kind: eventbus.ShutdownRequested, Timestamp: time.Now()})
		interrupted = true
		cancel()
	case runErr := <-errChan:
		if runErr != nil {
			logger.Error("doorcamd: run loop exited with error", "error", runErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("doorcamd: shutdown failed", "error", err)
		return exitFailure
	}

	logger.Info("doorcamd: stopped")
	if interrupted {
		return exitInterrupted
	}
	return exitSuccess
}

func printConfig(cfg *config.Config) {
	fmt.Printf("camera: index=%d resolution=%v max_fps=%d format=%s rotation=%d\n",
		cfg.Camera.Index, cfg.Camera.Resolution, cfg.Camera.MaxFPS, cfg.Camera.Format, cfg.Camera.Rotation)
	fmt.Printf("analyzer: max_fps=%d delta_threshold=%d contour_minimum_area=%.1f\n",
		cfg.Analyzer.MaxFPS, cfg.Analyzer.DeltaThreshold, cfg.Analyzer.ContourMinimumArea)
	fmt.Printf("event: preroll_seconds=%d postroll_seconds=%d\n",
		cfg.Event.PrerollSeconds, cfg.Event.PostrollSeconds)
	fmt.Printf("capture: path=%s timestamp_overlay=%t video_encoding=%t keep_images=%t save_metadata=%t\n",
		cfg.Capture.Path, cfg.Capture.TimestampOverlay, cfg.Capture.VideoEncoding, cfg.Capture.KeepImages, cfg.Capture.SaveMetadata)
	fmt.Printf("stream: ip=%s port=%d\n", cfg.Stream.IP, cfg.Stream.Port)
	fmt.Printf("display: framebuffer_device=%s backlight_device=%s touch_device=%s activation_period_seconds=%d rotation=%d\n",
		cfg.Display.FramebufferDevice, cfg.Display.BacklightDevice, cfg.Display.TouchDevice, cfg.Display.ActivationPeriodSeconds, cfg.Display.Rotation)
	fmt.Printf("system: retention_seconds=%d cleanup_interval_seconds=%d ring_capacity_override=%d\n",
		cfg.System.RetentionSeconds, cfg.System.CleanupIntervalSeconds, cfg.System.RingCapacityOverride)
}
