package encode

import (
	"errors"

	"github.com/video-system/go-camera-encode/pkg/source"
)

// Session is the interface for stateful video encoder sessions.
//
// The submit/drain protocol is asymmetric: one Submit may yield zero,
// one, or several packets, and the encoder may hold arbitrary internal
// buffering depth before emitting the first packet. Callers must call
// DrainOne repeatedly until DrainEmpty before the next Submit, so the
// internal queue cannot grow without bound. Submission order is
// preserved in packet emission order.
type Session interface {
	// Metadata
	Name() string
	Type() string // software, vaapi, nvenc, videotoolbox

	// Lifecycle
	Open(config Config) error
	Close() error

	// Submit queues one frame for encoding. A nil frame signals end
	// of stream; after that, any non-nil Submit returns
	// ErrSessionFlushed.
	Submit(frame *InputFrame) error

	// DrainOne pulls the next ready compressed packet. The status
	// distinguishes "no packet ready yet" from "encoder failed":
	// DrainPacket carries a packet, DrainEmpty means nothing is
	// ready, DrainFailed is terminal.
	DrainOne() (*Packet, DrainStatus)
}

// Sentinel errors for session operations.
var (
	// ErrSessionFlushed indicates a non-nil Submit after the
	// end-of-stream frame. This is a caller bug, not an encoder fault.
	ErrSessionFlushed = errors.New("session already flushed")

	// ErrSessionFailed indicates the encoder reported a hardware or
	// codec failure; the session is unusable.
	ErrSessionFailed = errors.New("encoder session failed")
)

// Plane describes one plane of an input frame: a borrowed view over
// pixel memory plus its row stride in bytes.
type Plane struct {
	Data   []byte
	Stride int
}

// InputFrame holds up to two plane descriptors. For packed formats
// only plane 0 is populated. A nil *InputFrame is the end-of-stream
// sentinel, not an InputFrame with empty planes.
type InputFrame struct {
	Planes [2]Plane
}

// Packet is an owned compressed bitstream buffer. Ownership passes to
// the caller on drain; it is consumed exactly once.
type Packet struct {
	Data []byte
}

// Size returns the packet payload length in bytes.
func (p *Packet) Size() int {
	return len(p.Data)
}

// DrainStatus is the tri-state result of DrainOne.
type DrainStatus int

const (
	// DrainPacket means a packet was returned.
	DrainPacket DrainStatus = iota
	// DrainEmpty means no packet is currently ready.
	DrainEmpty
	// DrainFailed means the encoder reported a failure.
	DrainFailed
)

// String returns a human-readable drain status.
func (s DrainStatus) String() string {
	switch s {
	case DrainPacket:
		return "packet"
	case DrainEmpty:
		return "empty"
	case DrainFailed:
		return "failed"
	}
	return "unknown"
}

// SessionState tracks the session lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAccepting
	StateDraining
	StateFlushed
	StateFailed
)

// String returns a human-readable session state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateFlushed:
		return "flushed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config holds encoder session configuration
type Config struct {
	Codec       string // h264, hevc
	Width       int
	Height      int
	Framerate   int
	Bitrate     int    // kbps
	Preset      string // ultrafast, fast, medium, slow
	GOP         int    // Keyframe interval in frames
	PixelFormat source.PixelFormat
}

// Registry holds registered encoder session plugins
var Registry = make(map[string]func() Session)

// Register registers an encoder session plugin
func Register(name string, factory func() Session) {
	Registry[name] = factory
}

// Get returns an encoder session plugin by name
func Get(name string) (Session, bool) {
	factory, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
