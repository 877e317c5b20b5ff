package capture

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUsage indicates the command line was malformed. It is distinct
// from runtime failures so the CLI can exit with the invalid-invocation
// code before any resource is opened.
var ErrUsage = errors.New("invalid arguments")

// Usage is the positional argument synopsis.
const Usage = "<width> <height> <framerate> <seconds> [outputFile]"

// ParseArgs builds a Config from positional arguments:
// width, height, framerate, duration in seconds, and an optional
// output path. Defaults for everything else are applied separately so
// a YAML overlay can still adjust them.
func ParseArgs(args []string) (*Config, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("%w: expected %s", ErrUsage, Usage)
	}

	names := []string{"width", "height", "framerate", "seconds"}
	vals := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", ErrUsage, name, args[i])
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrUsage, name, v)
		}
		vals[i] = v
	}

	cfg := &Config{
		Width:           vals[0],
		Height:          vals[1],
		Framerate:       vals[2],
		DurationSeconds: vals[3],
		WarmupFrames:    DefaultWarmupFrames,
	}
	if len(args) > 4 {
		cfg.OutputPath = args[4]
	}
	return cfg, nil
}
