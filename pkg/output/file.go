package output

import (
	"bufio"
	"fmt"
	"os"

	"github.com/video-system/go-camera-encode/pkg/encode"
)

func init() {
	Register("file", func() Sink { return NewFileSink() })
}

// FileSink writes a raw elementary stream to a file: packets are
// appended back to back in emission order, no container or muxing.
type FileSink struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// NewFileSink creates an unopened file sink
func NewFileSink() *FileSink {
	return &FileSink{}
}

// Name returns the sink name
func (s *FileSink) Name() string { return "File Sink" }

// Type returns the sink type
func (s *FileSink) Type() string { return "file" }

// Open creates (or truncates) the output file
func (s *FileSink) Open(config Config) error {
	f, err := os.Create(config.Path)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	s.path = config.Path
	s.file = f
	s.w = bufio.NewWriter(f)
	return nil
}

// WritePacket appends the packet bytes to the file
func (s *FileSink) WritePacket(pkt *encode.Packet) error {
	if s.w == nil {
		return fmt.Errorf("sink not open")
	}
	if _, err := s.w.Write(pkt.Data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// Close flushes buffered bytes and closes the file. Safe to call more
// than once.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file = nil
	s.w = nil
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	return closeErr
}

// Path returns the output file path
func (s *FileSink) Path() string { return s.path }
