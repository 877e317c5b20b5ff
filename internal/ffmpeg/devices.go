package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
)

// DeviceInfo describes a discovered capture device
type DeviceInfo struct {
	ID          string
	Description string
	IsDefault   bool
}

// ListSources lists capture devices known to FFmpeg for the given
// input backend (e.g. "v4l2"). FFmpeg exits non-zero on some platforms
// even with usable output, so parse errors are only reported when
// nothing was parsed.
func (f *FFmpeg) ListSources(ctx context.Context, backend string) ([]DeviceInfo, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-hide_banner", "-sources", backend)
	output, err := cmd.CombinedOutput()

	devices := parseSources(string(output))
	if len(devices) == 0 && err != nil {
		return nil, err
	}
	return devices, nil
}

// parseSources parses `ffmpeg -sources` output lines of the form
//
//	  /dev/video0 [Integrated Camera]
//	* /dev/video2 [USB Capture]
//
// where the asterisk marks the default device.
func parseSources(output string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Auto-detected") {
			continue
		}

		isDefault := strings.HasPrefix(line, "*")
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))

		id, desc := line, ""
		if i := strings.Index(line, "["); i >= 0 {
			id = strings.TrimSpace(line[:i])
			desc = strings.Trim(line[i:], "[]")
		}
		if id == "" || !strings.HasPrefix(id, "/") {
			continue
		}

		devices = append(devices, DeviceInfo{
			ID:          id,
			Description: desc,
			IsDefault:   isDefault,
		})
	}
	return devices
}
