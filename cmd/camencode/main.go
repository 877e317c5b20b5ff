// Command camencode captures a fixed-length session from a live
// camera, encodes it, and writes the raw elementary stream to a file.
//
// Usage:
//
//	camencode <width> <height> <framerate> <seconds> [outputFile]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-encode/pkg/capture"
	"github.com/video-system/go-camera-encode/pkg/encode"
	"github.com/video-system/go-camera-encode/pkg/output"
	"github.com/video-system/go-camera-encode/pkg/pipeline"
	"github.com/video-system/go-camera-encode/pkg/source"

	// Register source and encoder plugins
	_ "github.com/video-system/go-camera-encode/pkg/hwenc"
	"github.com/video-system/go-camera-encode/pkg/v4l2"
)

// Exit codes. Invalid invocation is distinct from every runtime
// failure class.
const (
	exitOK      = 0
	exitUsage   = 1 // Bad arguments or config
	exitSink    = 2 // Output file could not be opened
	exitInit    = 3 // Camera or encoder initialization failure
	exitRuntime = 4 // Run did not complete the full frame budget
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Optional YAML config overlay")
	verbose := flag.Bool("v", false, "Enable debug logging")
	listDevices := flag.Bool("devices", false, "List capture devices and exit")
	flag.Parse()

	logrus.SetLevel(logrus.InfoLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *listDevices {
		return printDevices()
	}

	cfg, err := capture.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n", os.Args[0], capture.Usage)
		fmt.Fprintf(os.Stderr, "\nexamples:\n")
		fmt.Fprintf(os.Stderr, "  %s 640 360 30 5\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s 640 360 30 5 output.h264\n", os.Args[0])
		return exitUsage
	}

	if *configPath != "" {
		if err := cfg.LoadOverlay(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	logrus.WithFields(logrus.Fields{
		"resolution": fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate":  cfg.Framerate,
		"seconds":    cfg.DurationSeconds,
		"frames":     cfg.FrameBudget(),
		"output":     cfg.OutputPath,
	}).Info("Starting capture session")

	// Open the sink first: there is no point touching hardware when
	// the output path is unwritable.
	sink, ok := output.Get("file")
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: file sink not registered")
		return exitSink
	}
	if err := sink.Open(output.Config{Path: cfg.OutputPath}); err != nil {
		logrus.WithError(err).Error("Failed to open output file")
		return exitSink
	}

	src, ok := source.Get(cfg.Source.Type)
	if !ok {
		logrus.Errorf("Unknown source type %q", cfg.Source.Type)
		_ = sink.Close()
		return exitInit
	}
	if err := src.Open(source.Config{
		Device:    cfg.Source.Device,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Framerate: cfg.Framerate,
		Format:    cfg.PixelFormat,
		Timeout:   cfg.Source.Timeout.Std(),
	}); err != nil {
		logrus.WithError(err).Error("Failed to open camera")
		_ = sink.Close()
		return exitInit
	}

	session, ok := encode.Get(cfg.Encode.Type)
	if !ok {
		logrus.Errorf("Unknown encoder type %q", cfg.Encode.Type)
		_ = src.Close()
		_ = sink.Close()
		return exitInit
	}
	if err := session.Open(encode.Config{
		Codec:       cfg.Encode.Codec,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Framerate:   cfg.Framerate,
		Bitrate:     cfg.Encode.Bitrate,
		Preset:      cfg.Encode.Preset,
		GOP:         cfg.Encode.GOP,
		PixelFormat: cfg.PixelFormat,
	}); err != nil {
		logrus.WithError(err).Error("Failed to open encoder")
		_ = src.Close()
		_ = sink.Close()
		return exitInit
	}

	// Interrupt aborts the run at the next frame boundary; the driver
	// still flushes and releases everything on that path.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Shutdown signal received...")
		cancel()
	}()

	driver := pipeline.New(cfg, src, session, sink)
	rep := driver.Run(ctx)

	if !rep.Success() {
		logrus.WithFields(logrus.Fields{
			"frames": rep.FramesProcessed,
			"budget": rep.FrameBudget,
			"state":  rep.FinalState,
		}).Error("Capture session incomplete")
		return exitRuntime
	}

	fmt.Println("Finished successfully.")
	fmt.Printf("Saved %d packets (%d bytes) to:\n\n%s\n",
		rep.PacketsWritten, rep.BytesWritten, rep.OutputPath)
	return exitOK
}

func printDevices() int {
	devices, err := v4l2.New().ListDevices(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInit
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found")
		return exitOK
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\n", marker, d.ID, d.Description)
	}
	return exitOK
}
