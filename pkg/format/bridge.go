// Package format bridges captured frames into the plane layout the
// encoder consumes.
package format

import (
	"fmt"

	"github.com/video-system/go-camera-encode/pkg/encode"
	"github.com/video-system/go-camera-encode/pkg/source"
)

// Adapt reinterprets a raw frame as an encoder input frame. For packed
// single-plane formats this is zero-copy: plane 0 aliases the frame's
// backing memory with the frame's stride, plane 1 stays empty. The
// returned frame therefore shares the raw frame's lifetime and must be
// consumed before the next pull from the source.
//
// Planar formats would need a split into separate luma/chroma planes
// (with a neutral-chroma fill for sources that only deliver luma);
// that path is not supported and reports an error.
func Adapt(f *source.Frame) (*encode.InputFrame, error) {
	if !f.Format.Packed() {
		return nil, fmt.Errorf("format %s: plane splitting not supported", f.Format)
	}

	in := &encode.InputFrame{}
	in.Planes[0] = encode.Plane{
		Data:   f.Data,
		Stride: f.Stride,
	}
	return in, nil
}
