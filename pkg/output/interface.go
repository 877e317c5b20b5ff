package output

import (
	"github.com/video-system/go-camera-encode/pkg/encode"
)

// Sink is the interface for compressed bitstream destinations
type Sink interface {
	// Metadata
	Name() string
	Type() string

	// Lifecycle
	Open(config Config) error
	Close() error

	// WritePacket appends one packet's bytes to the sink. Packets are
	// written strictly in the order delivered.
	WritePacket(pkt *encode.Packet) error
}

// Config holds sink configuration
type Config struct {
	Path string // Output path
}

// Registry holds registered sink plugins
var Registry = make(map[string]func() Sink)

// Register registers a sink plugin
func Register(name string, factory func() Sink) {
	Registry[name] = factory
}

// Get returns a sink plugin by name
func Get(name string) (Sink, bool) {
	factory, ok := Registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
