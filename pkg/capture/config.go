package capture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-camera-encode/pkg/source"
)

// Default values applied by ApplyDefaults. The warmup count is an
// explicit field rather than a hidden constant so tests can inject a
// different value.
const (
	DefaultWarmupFrames = 10
	DefaultOutputPath   = "output.h264"
	DefaultDevice       = "/dev/video0"
)

// Config holds all capture session configuration
type Config struct {
	// Geometry and timing (from positional CLI arguments)
	Width           int `yaml:"width"`
	Height          int `yaml:"height"`
	Framerate       int `yaml:"framerate"`
	DurationSeconds int `yaml:"duration_seconds"`

	// Pixel format delivered by the camera. Fixed to packed YUYV for
	// this pipeline.
	PixelFormat source.PixelFormat `yaml:"pixel_format"`

	// WarmupFrames are pulled and discarded before encoding starts,
	// giving camera auto-exposure and white balance time to settle.
	// They do not count against the frame budget.
	WarmupFrames int `yaml:"warmup_frames"`

	OutputPath string `yaml:"output_path"`

	Source SourceConfig `yaml:"source"`
	Encode EncodeConfig `yaml:"encode"`
}

// SourceConfig configures the camera source
type SourceConfig struct {
	Type    string   `yaml:"type"`    // v4l2
	Device  string   `yaml:"device"`  // Device identifier
	Timeout Duration `yaml:"timeout"` // Per-frame wait bound
}

// EncodeConfig configures the encoder session
type EncodeConfig struct {
	Type    string `yaml:"type"`    // software, vaapi, nvenc, videotoolbox
	Codec   string `yaml:"codec"`   // h264, hevc
	Preset  string `yaml:"preset"`  // ultrafast, fast, medium
	Bitrate int    `yaml:"bitrate"` // Target bitrate in kbps
	GOP     int    `yaml:"gop"`     // Keyframe interval (frames)
}

// FrameBudget returns the number of frames to capture and encode.
func (c *Config) FrameBudget() int {
	return c.Framerate * c.DurationSeconds
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.Framerate <= 0 {
		return fmt.Errorf("invalid framerate %d", c.Framerate)
	}
	if c.DurationSeconds <= 0 {
		return fmt.Errorf("invalid duration %ds", c.DurationSeconds)
	}
	if c.WarmupFrames < 0 {
		return fmt.Errorf("invalid warmup frame count %d", c.WarmupFrames)
	}
	if !c.PixelFormat.Packed() {
		return fmt.Errorf("pixel format %s: only packed formats are supported", c.PixelFormat)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.PixelFormat == "" {
		c.PixelFormat = source.FormatYUYV
	}
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.Source.Type == "" {
		c.Source.Type = "v4l2"
	}
	if c.Source.Device == "" {
		c.Source.Device = DefaultDevice
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = Duration(2 * time.Second)
	}
	if c.Encode.Type == "" {
		c.Encode.Type = "software"
	}
	if c.Encode.Codec == "" {
		c.Encode.Codec = "h264"
	}
	if c.Encode.Preset == "" {
		c.Encode.Preset = "fast"
	}
	if c.Encode.Bitrate == 0 {
		c.Encode.Bitrate = 6000
	}
	if c.Encode.GOP == 0 {
		c.Encode.GOP = 2 * c.Framerate
	}
}

// LoadOverlay merges settings from a YAML file over the config.
// Positional CLI arguments win: geometry and timing fields from the
// file never override values already set.
func (c *Config) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if overlay.PixelFormat != "" {
		c.PixelFormat = overlay.PixelFormat
	}
	if overlay.WarmupFrames != 0 {
		c.WarmupFrames = overlay.WarmupFrames
	}
	if overlay.OutputPath != "" && c.OutputPath == "" {
		c.OutputPath = overlay.OutputPath
	}
	if overlay.Source.Type != "" {
		c.Source.Type = overlay.Source.Type
	}
	if overlay.Source.Device != "" {
		c.Source.Device = overlay.Source.Device
	}
	if overlay.Source.Timeout != 0 {
		c.Source.Timeout = overlay.Source.Timeout
	}
	if overlay.Encode.Type != "" {
		c.Encode.Type = overlay.Encode.Type
	}
	if overlay.Encode.Codec != "" {
		c.Encode.Codec = overlay.Encode.Codec
	}
	if overlay.Encode.Preset != "" {
		c.Encode.Preset = overlay.Encode.Preset
	}
	if overlay.Encode.Bitrate != 0 {
		c.Encode.Bitrate = overlay.Encode.Bitrate
	}
	if overlay.Encode.GOP != 0 {
		c.Encode.GOP = overlay.Encode.GOP
	}
	return nil
}
