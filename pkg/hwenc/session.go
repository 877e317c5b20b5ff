// Package hwenc implements an encoder session over an FFmpeg process:
// raw frames in on stdin, elementary compressed stream out on stdout.
// Codec selection covers the software encoders plus the VAAPI, NVENC,
// and VideoToolbox hardware paths.
package hwenc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-encode/internal/ffmpeg"
	"github.com/video-system/go-camera-encode/pkg/encode"
)

func init() {
	for _, typ := range []string{"software", "vaapi", "nvenc", "videotoolbox"} {
		typ := typ
		encode.Register(typ, func() encode.Session { return New(typ) })
	}
}

// Session drives one FFmpeg encoding process
type Session struct {
	typ  string
	cfg  encode.Config
	proc *ffmpeg.Process
	pump *packetPump

	state encode.SessionState
	eos   bool // end-of-stream frame submitted

	log *logrus.Entry
}

// New creates an unopened session of the given encoder type
func New(typ string) *Session {
	return &Session{
		typ: typ,
		log: logrus.WithFields(logrus.Fields{
			"component": "hwenc",
			"type":      typ,
		}),
	}
}

// Name returns the session name
func (s *Session) Name() string { return "FFmpeg Encoder" }

// Type returns the encoder type
func (s *Session) Type() string { return s.typ }

// Open starts the encoder process
func (s *Session) Open(config encode.Config) error {
	ff, err := ffmpeg.New()
	if err != nil {
		return fmt.Errorf("encoder init: %w", err)
	}

	args, err := buildArgs(s.typ, config)
	if err != nil {
		return fmt.Errorf("encoder init: %w", err)
	}

	proc, err := ff.Start(context.Background(), ffmpeg.ProcessOptions{
		Args:       args,
		PipeStdin:  true,
		PipeStdout: true,
		LogTag:     "hwenc",
	})
	if err != nil {
		return fmt.Errorf("encoder init: %w", err)
	}

	// FFmpeg rejects an unsupported codec/resolution/format combination
	// right away; catch that here so it surfaces as an init failure
	// rather than a broken pipe on the first Submit.
	time.Sleep(150 * time.Millisecond)
	if exited, werr := proc.Exited(); exited {
		return fmt.Errorf("encoder init: ffmpeg exited: %v", werr)
	}

	s.cfg = config
	s.proc = proc
	s.pump = newPacketPump(proc.Stdout())
	s.state = encode.StateIdle

	s.log.WithFields(logrus.Fields{
		"codec":     config.Codec,
		"width":     config.Width,
		"height":    config.Height,
		"framerate": config.Framerate,
		"bitrate":   config.Bitrate,
	}).Info("Encoder session opened")
	return nil
}

// buildArgs builds the FFmpeg command line for the session
func buildArgs(typ string, cfg encode.Config) ([]string, error) {
	args := []string{
		"-hide_banner",

		// Input
		"-f", "rawvideo",
		"-pix_fmt", string(cfg.PixelFormat),
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", fmt.Sprintf("%d", cfg.Framerate),
		"-i", "pipe:0",
	}

	codec, err := codecName(typ, cfg.Codec)
	if err != nil {
		return nil, err
	}

	if typ == "vaapi" {
		args = append(args,
			"-vaapi_device", "/dev/dri/renderD128",
			"-vf", "format=nv12,hwupload",
		)
	}

	args = append(args, "-c:v", codec)

	if typ == "software" || typ == "nvenc" {
		args = append(args, "-preset", cfg.Preset)
	}

	args = append(args,
		"-b:v", fmt.Sprintf("%dk", cfg.Bitrate),
		"-g", fmt.Sprintf("%d", cfg.GOP),
		"-keyint_min", fmt.Sprintf("%d", cfg.GOP),
		"-sc_threshold", "0",

		// Raw elementary stream on stdout, no container
		"-f", rawFormat(cfg.Codec),
		"pipe:1",
	)
	return args, nil
}

// codecName maps encoder type and codec to the FFmpeg encoder name
func codecName(typ, codec string) (string, error) {
	names := map[string]map[string]string{
		"software":     {"h264": "libx264", "hevc": "libx265"},
		"vaapi":        {"h264": "h264_vaapi", "hevc": "hevc_vaapi"},
		"nvenc":        {"h264": "h264_nvenc", "hevc": "hevc_nvenc"},
		"videotoolbox": {"h264": "h264_videotoolbox", "hevc": "hevc_videotoolbox"},
	}
	byCodec, ok := names[typ]
	if !ok {
		return "", fmt.Errorf("unknown encoder type %q", typ)
	}
	name, ok := byCodec[codec]
	if !ok {
		return "", fmt.Errorf("codec %q not supported by %s encoder", codec, typ)
	}
	return name, nil
}

// rawFormat maps the codec to its raw elementary stream muxer
func rawFormat(codec string) string {
	if codec == "hevc" {
		return "hevc"
	}
	return "h264"
}

// Submit queues one frame, or signals end of stream with nil. A write
// failure marks the session failed.
func (s *Session) Submit(frame *encode.InputFrame) error {
	if s.proc == nil {
		return fmt.Errorf("session not open")
	}
	if s.state == encode.StateFailed {
		return encode.ErrSessionFailed
	}
	if s.eos {
		if frame == nil {
			return nil
		}
		return encode.ErrSessionFlushed
	}

	if frame == nil {
		s.eos = true
		if err := s.proc.CloseStdin(); err != nil {
			s.state = encode.StateFailed
			return fmt.Errorf("signal end of stream: %w", err)
		}
		return nil
	}

	for _, plane := range frame.Planes {
		if len(plane.Data) == 0 {
			continue
		}
		if _, err := s.proc.Write(plane.Data); err != nil {
			s.state = encode.StateFailed
			return fmt.Errorf("send frame: %w", err)
		}
	}
	s.state = encode.StateAccepting
	return nil
}

// DrainOne pulls the next ready packet. Before end of stream it is a
// non-blocking poll; after the end-of-stream submit it waits for the
// encoder to finish so buffered frames are not lost.
func (s *Session) DrainOne() (*encode.Packet, encode.DrainStatus) {
	switch s.state {
	case encode.StateFailed:
		return nil, encode.DrainFailed
	case encode.StateFlushed:
		return nil, encode.DrainEmpty
	}
	if s.pump == nil {
		return nil, encode.DrainEmpty
	}

	if s.eos {
		pkt, got := s.pump.wait()
		if got {
			return pkt, encode.DrainPacket
		}
		if s.pump.err() != nil || (s.proc != nil && s.proc.Wait() != nil) {
			s.state = encode.StateFailed
			return nil, encode.DrainFailed
		}
		s.state = encode.StateFlushed
		return nil, encode.DrainEmpty
	}

	pkt, got, closed := s.pump.poll()
	switch {
	case got:
		s.state = encode.StateDraining
		return pkt, encode.DrainPacket
	case closed:
		// Output ended while frames were still expected: the encoder
		// process died.
		s.state = encode.StateFailed
		return nil, encode.DrainFailed
	default:
		return nil, encode.DrainEmpty
	}
}

// Close releases the encoder process. Safe on every exit path,
// including sessions that never opened or already failed.
func (s *Session) Close() error {
	if s.proc == nil {
		return nil
	}
	proc := s.proc
	s.proc = nil

	_ = proc.CloseStdin()
	select {
	case <-time.After(3 * time.Second):
		_ = proc.Kill()
	case <-waitChan(proc):
	}
	err := proc.Wait()
	s.log.Debug("Encoder session closed")
	if err != nil && s.state != encode.StateFailed {
		return fmt.Errorf("encoder exit: %w", err)
	}
	return nil
}

// waitChan adapts Process.Wait to a select-able channel
func waitChan(p *ffmpeg.Process) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(ch)
	}()
	return ch
}
