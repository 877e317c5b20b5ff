package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-encode/pkg/capture"
	"github.com/video-system/go-camera-encode/pkg/encode"
	"github.com/video-system/go-camera-encode/pkg/output"
	"github.com/video-system/go-camera-encode/pkg/source"
)

// fakeSource hands out frames backed by a single reused buffer, the
// way a real camera adapter does. The frame payload carries the pull
// number so tests can check which capture instants were encoded.
type fakeSource struct {
	failAt  int // 1-based pull index that fails (0 = never)
	failErr error

	pulls  int
	closed bool
	buf    [1]byte
}

func (s *fakeSource) Name() string { return "Fake Source" }
func (s *fakeSource) Type() string { return "fake" }

func (s *fakeSource) Open(source.Config) error { return nil }

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSource) NextFrame(ctx context.Context) (*source.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrSourceDisconnected, err)
	}
	s.pulls++
	if s.failAt > 0 && s.pulls >= s.failAt {
		return nil, s.failErr
	}
	s.buf[0] = byte(s.pulls)
	return &source.Frame{
		Data:   s.buf[:],
		Number: uint64(s.pulls),
		Width:  640,
		Height: 360,
		Stride: 1280,
		Format: source.FormatYUYV,
	}, nil
}

const flushMarker = 0xFF

// fakeSession emits a configurable number of packets per submit plus a
// trailing batch on flush. Each packet echoes the submitted frame's
// payload byte so output ordering is observable at the sink.
type fakeSession struct {
	packetsPerSubmit int
	flushPackets     int
	failOnSubmit     int // 1-based non-nil submit index that fails
	failDrainAfter   int // total drained packets after which drain fails

	queue   []*encode.Packet
	submits []byte
	drained int
	flushed bool
	closed  bool
}

func (s *fakeSession) Name() string             { return "Fake Session" }
func (s *fakeSession) Type() string             { return "fake" }
func (s *fakeSession) Open(encode.Config) error { return nil }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) Submit(frame *encode.InputFrame) error {
	if frame == nil {
		if s.flushed {
			return nil
		}
		s.flushed = true
		for i := 0; i < s.flushPackets; i++ {
			s.queue = append(s.queue, &encode.Packet{Data: []byte{flushMarker}})
		}
		return nil
	}
	if s.flushed {
		return encode.ErrSessionFlushed
	}
	if s.failOnSubmit > 0 && len(s.submits)+1 == s.failOnSubmit {
		return errors.New("hardware rejected frame")
	}
	tag := frame.Planes[0].Data[0]
	s.submits = append(s.submits, tag)
	for i := 0; i < s.packetsPerSubmit; i++ {
		s.queue = append(s.queue, &encode.Packet{Data: []byte{tag}})
	}
	return nil
}

func (s *fakeSession) DrainOne() (*encode.Packet, encode.DrainStatus) {
	if s.failDrainAfter > 0 && s.drained >= s.failDrainAfter {
		return nil, encode.DrainFailed
	}
	if len(s.queue) == 0 {
		return nil, encode.DrainEmpty
	}
	pkt := s.queue[0]
	s.queue = s.queue[1:]
	s.drained++
	return pkt, encode.DrainPacket
}

// fakeSink records every packet byte in write order.
type fakeSink struct {
	bytes     []byte
	packets   int
	closed    bool
	failWrite bool
}

func (s *fakeSink) Name() string             { return "Fake Sink" }
func (s *fakeSink) Type() string             { return "fake" }
func (s *fakeSink) Open(output.Config) error { return nil }

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSink) WritePacket(pkt *encode.Packet) error {
	if s.failWrite {
		return errors.New("disk full")
	}
	s.bytes = append(s.bytes, pkt.Data...)
	s.packets++
	return nil
}

func testConfig() *capture.Config {
	cfg := &capture.Config{
		Width:           640,
		Height:          360,
		Framerate:       30,
		DurationSeconds: 1,
		PixelFormat:     source.FormatYUYV,
		WarmupFrames:    10,
		OutputPath:      "test.h264",
	}
	return cfg
}

func TestRunSuccess(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1, flushPackets: 1}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.NoError(t, rep.Err)
	assert.True(t, rep.Success())
	assert.Equal(t, 30, rep.FrameBudget)
	assert.Equal(t, 30, rep.FramesProcessed)

	// One packet per frame plus one from the flush
	assert.Equal(t, 31, rep.PacketsWritten)
	assert.Equal(t, 31, sink.packets)
	assert.Equal(t, int64(31), rep.BytesWritten)
	assert.Equal(t, "done", rep.FinalState)
	assert.NotEmpty(t, rep.SessionID)
}

func TestRunSkipsWarmupFrames(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())
	require.NoError(t, rep.Err)

	// The first encoded frame is the capture instant right after the
	// warmup discard, and submission order is preserved.
	require.Len(t, session.submits, 30)
	assert.Equal(t, byte(11), session.submits[0])
	for i, tag := range session.submits {
		assert.Equal(t, byte(11+i), tag)
	}
	assert.Equal(t, 40, src.pulls)
}

func TestRunPreservesPacketOrder(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 2, flushPackets: 3}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Equal(t, 30*2+3, rep.PacketsWritten)

	// Two packets per frame, tags non-decreasing, flush markers last
	require.Len(t, sink.bytes, 63)
	for i := 0; i < 30; i++ {
		assert.Equal(t, byte(11+i), sink.bytes[2*i])
		assert.Equal(t, byte(11+i), sink.bytes[2*i+1])
	}
	for _, b := range sink.bytes[60:] {
		assert.Equal(t, byte(flushMarker), b)
	}
}

func TestRunSourceFailureMidRun(t *testing.T) {
	cfg := testConfig()
	// Warmup consumes pulls 1-10; the 15th post-warmup pull is 25.
	src := &fakeSource{failAt: 25, failErr: source.ErrSourceDisconnected}
	session := &fakeSession{packetsPerSubmit: 1, flushPackets: 1}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.Error(t, rep.Err)
	assert.ErrorIs(t, rep.Err, source.ErrSourceDisconnected)
	assert.False(t, rep.Success())
	assert.Equal(t, 14, rep.FramesProcessed)
	assert.Equal(t, "aborted", rep.FinalState)

	// Whatever was submitted is still flushed to the sink
	assert.True(t, session.flushed)
	assert.Equal(t, 15, sink.packets) // 14 frames + 1 flush packet
	assert.Equal(t, byte(flushMarker), sink.bytes[len(sink.bytes)-1])

	// And every resource is released
	assert.True(t, src.closed)
	assert.True(t, session.closed)
	assert.True(t, sink.closed)
}

func TestRunSubmitFailure(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1, failOnSubmit: 15}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.Error(t, rep.Err)
	assert.False(t, rep.Success())
	assert.Equal(t, 14, rep.FramesProcessed)
	assert.True(t, src.closed)
	assert.True(t, session.closed)
	assert.True(t, sink.closed)
}

func TestRunDrainFailure(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1, failDrainAfter: 5}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.Error(t, rep.Err)
	assert.ErrorIs(t, rep.Err, encode.ErrSessionFailed)
	assert.Equal(t, 5, rep.FramesProcessed)
	assert.Equal(t, "aborted", rep.FinalState)
	assert.True(t, session.closed)
}

func TestRunWarmupFailure(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{failAt: 5, failErr: source.ErrSourceTimeout}
	session := &fakeSession{packetsPerSubmit: 1, flushPackets: 1}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.Error(t, rep.Err)
	assert.ErrorIs(t, rep.Err, source.ErrSourceTimeout)
	assert.Equal(t, 0, rep.FramesProcessed)

	// Nothing was submitted, so nothing is flushed or written
	assert.False(t, session.flushed)
	assert.Zero(t, sink.packets)
	assert.True(t, src.closed)
	assert.True(t, session.closed)
	assert.True(t, sink.closed)
}

func TestRunSinkWriteFailure(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1}
	sink := &fakeSink{failWrite: true}

	rep := New(cfg, src, session, sink).Run(context.Background())

	require.Error(t, rep.Err)
	assert.Equal(t, 0, rep.FramesProcessed)
	assert.Equal(t, "aborted", rep.FinalState)
	assert.True(t, sink.closed)
}

func TestRunZeroWarmup(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupFrames = 0
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1}
	sink := &fakeSink{}

	rep := New(cfg, src, session, sink).Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Equal(t, byte(1), session.submits[0])
	assert.Equal(t, 30, src.pulls)
}

func TestRunCancelledContext(t *testing.T) {
	cfg := testConfig()
	src := &fakeSource{}
	session := &fakeSession{packetsPerSubmit: 1}
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := New(cfg, src, session, sink).Run(ctx)
	require.Error(t, rep.Err)
	assert.False(t, rep.Success())
	assert.True(t, sink.closed)
}
