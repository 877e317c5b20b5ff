package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-camera-encode/pkg/encode"
)

func TestFileSinkWritesPacketsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.h264")

	sink := NewFileSink()
	require.NoError(t, sink.Open(Config{Path: path}))

	packets := [][]byte{
		{0x00, 0x00, 0x00, 0x01, 0x67},
		{0x00, 0x00, 0x00, 0x01, 0x68},
		{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA},
	}
	for _, p := range packets {
		require.NoError(t, sink.WritePacket(&encode.Packet{Data: p}))
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var want []byte
	for _, p := range packets {
		want = append(want, p...)
	}
	assert.Equal(t, want, data)
}

func TestFileSinkCloseIsIdempotent(t *testing.T) {
	sink := NewFileSink()
	require.NoError(t, sink.Open(Config{Path: filepath.Join(t.TempDir(), "out.h264")}))
	require.NoError(t, sink.Close())
	assert.NoError(t, sink.Close())
}

func TestFileSinkOpenFailure(t *testing.T) {
	sink := NewFileSink()
	err := sink.Open(Config{Path: filepath.Join(t.TempDir(), "no", "such", "dir", "out.h264")})
	assert.Error(t, err)
}

func TestFileSinkWriteBeforeOpen(t *testing.T) {
	sink := NewFileSink()
	assert.Error(t, sink.WritePacket(&encode.Packet{Data: []byte{1}}))
}

func TestRegistry(t *testing.T) {
	sink, ok := Get("file")
	require.True(t, ok)
	assert.Equal(t, "file", sink.Type())

	_, ok = Get("nope")
	assert.False(t, ok)
}
