package source

import (
	"context"
	"errors"
	"time"
)

// Source is the interface for live frame sources (cameras)
type Source interface {
	// Metadata
	Name() string
	Type() string

	// Lifecycle
	Open(config Config) error
	Close() error

	// Capture. NextFrame blocks until a frame is available, the
	// configured timeout elapses, or ctx is cancelled. The returned
	// Frame borrows the source's internal buffer and is only valid
	// until the next NextFrame call.
	NextFrame(ctx context.Context) (*Frame, error)
}

// Sentinel errors for source operations, classifiable with errors.Is.
var (
	// ErrSourceUnavailable indicates the device could not be opened
	// (not found, or the resolution/format/framerate combination is
	// not supported by the hardware).
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceTimeout indicates no frame arrived within the timeout.
	ErrSourceTimeout = errors.New("source timed out waiting for frame")

	// ErrSourceDisconnected indicates the device was lost mid-stream.
	ErrSourceDisconnected = errors.New("source disconnected")
)

// Config holds source configuration
type Config struct {
	Device    string        // Device identifier (e.g. /dev/video0)
	Width     int
	Height    int
	Framerate int
	Format    PixelFormat
	Timeout   time.Duration // Per-frame wait bound (0 = default)
}

// Frame is one captured video frame. Data is a view over memory owned
// by the source and reused for the next frame; callers must finish
// consuming it before pulling again.
type Frame struct {
	Data      []byte
	Number    uint64 // Monotonic capture instant, starts at 1
	Width     int
	Height    int
	Stride    int // Row stride in bytes
	Format    PixelFormat
	Timestamp int64 // Unix nanoseconds
}

// PixelFormat represents a video pixel format
type PixelFormat string

const (
	FormatYUYV    PixelFormat = "yuyv422"
	FormatUYVY    PixelFormat = "uyvy422"
	FormatNV12    PixelFormat = "nv12"
	FormatYUV420P PixelFormat = "yuv420p"
)

// Packed reports whether the format stores all components in a single
// interleaved plane.
func (f PixelFormat) Packed() bool {
	switch f {
	case FormatYUYV, FormatUYVY:
		return true
	}
	return false
}

// BytesPerPixel returns the packed bytes per pixel, or 0 for planar
// formats where the notion does not apply.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatYUYV, FormatUYVY:
		return 2
	}
	return 0
}

// Registry holds registered source plugins
var Registry = make(map[string]func() Source)

// Register registers a source plugin
func Register(name string, factory func() Source) {
	Registry[name] = factory
}

// Get returns a source plugin by name
func Get(name string) (Source, bool) {
	factory, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
