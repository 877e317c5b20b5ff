// Package v4l2 implements a camera frame source on top of an FFmpeg
// rawvideo pipe. FFmpeg owns the device handshake; this package reads
// frame-sized chunks from its stdout into a single reused buffer.
package v4l2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-encode/internal/ffmpeg"
	"github.com/video-system/go-camera-encode/pkg/source"
)

func init() {
	source.Register("v4l2", func() source.Source { return New() })
}

const defaultTimeout = 2 * time.Second

// Source captures raw frames from a V4L2 device via FFmpeg
type Source struct {
	cfg  source.Config
	ff   *ffmpeg.FFmpeg
	proc *ffmpeg.Process

	// Single backing buffer, reused for every frame. The Frame
	// returned by NextFrame aliases it, so the previous frame is
	// invalidated by the next pull.
	buf    []byte
	stride int
	number uint64

	log *logrus.Entry
}

// New creates an unopened V4L2 source
func New() *Source {
	return &Source{
		log: logrus.WithField("component", "v4l2"),
	}
}

// Name returns the source name
func (s *Source) Name() string { return "V4L2 Camera" }

// Type returns the source type
func (s *Source) Type() string { return "v4l2" }

// Open starts the FFmpeg capture process for the configured device.
// Device, format, or mode problems surface as ErrSourceUnavailable.
func (s *Source) Open(config source.Config) error {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	bpp := config.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: format %s is not packed", source.ErrSourceUnavailable, config.Format)
	}

	ff, err := ffmpeg.New()
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}

	s.cfg = config
	s.ff = ff
	s.stride = config.Width * bpp
	s.buf = make([]byte, s.stride*config.Height)

	proc, err := ff.Start(context.Background(), ffmpeg.ProcessOptions{
		Args:       buildArgs(config),
		PipeStdout: true,
		LogTag:     "v4l2",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	s.proc = proc

	s.log.WithFields(logrus.Fields{
		"device":    config.Device,
		"width":     config.Width,
		"height":    config.Height,
		"framerate": config.Framerate,
		"format":    config.Format,
	}).Info("Camera stream opened")
	return nil
}

// buildArgs builds the FFmpeg command line for a rawvideo pipe from
// the camera to stdout.
func buildArgs(cfg source.Config) []string {
	return []string{
		"-hide_banner",
		"-f", "v4l2",
		"-input_format", string(cfg.Format),
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", fmt.Sprintf("%d", cfg.Framerate),
		"-i", cfg.Device,
		"-f", "rawvideo",
		"-pix_fmt", string(cfg.Format),
		"pipe:1",
	}
}

// NextFrame blocks until the next full frame has been read from the
// capture process. The returned frame borrows s.buf and is valid only
// until the next call.
func (s *Source) NextFrame(ctx context.Context) (*source.Frame, error) {
	if s.proc == nil {
		return nil, source.ErrSourceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrSourceDisconnected, err)
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r := io.Reader(s.proc.Stdout())
	if f, ok := s.proc.StdoutFile(); ok {
		if err := f.SetReadDeadline(deadline); err == nil {
			r = f
		}
	}

	if _, err := io.ReadFull(r, s.buf); err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil, fmt.Errorf("%w after %v", source.ErrSourceTimeout, s.cfg.Timeout)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: capture process ended", source.ErrSourceDisconnected)
		default:
			return nil, fmt.Errorf("%w: %v", source.ErrSourceDisconnected, err)
		}
	}

	s.number++
	return &source.Frame{
		Data:      s.buf,
		Number:    s.number,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Stride:    s.stride,
		Format:    s.cfg.Format,
		Timestamp: time.Now().UnixNano(),
	}, nil
}

// Close terminates the capture process
func (s *Source) Close() error {
	if s.proc == nil {
		return nil
	}
	proc := s.proc
	s.proc = nil

	_ = proc.Kill()
	_ = proc.Wait()
	s.log.WithField("frames", s.number).Debug("Camera stream closed")
	return nil
}

// ListDevices discovers V4L2 capture devices
func (s *Source) ListDevices(ctx context.Context) ([]ffmpeg.DeviceInfo, error) {
	ff := s.ff
	if ff == nil {
		var err error
		if ff, err = ffmpeg.New(); err != nil {
			return nil, err
		}
	}
	return ff.ListSources(ctx, "v4l2")
}
