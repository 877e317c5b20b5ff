package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainStatusString(t *testing.T) {
	tests := []struct {
		status   DrainStatus
		expected string
	}{
		{DrainPacket, "packet"},
		{DrainEmpty, "empty"},
		{DrainFailed, "failed"},
		{DrainStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state    SessionState
		expected string
	}{
		{StateIdle, "idle"},
		{StateAccepting, "accepting"},
		{StateDraining, "draining"},
		{StateFlushed, "flushed"},
		{StateFailed, "failed"},
		{SessionState(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}

func TestPacketSize(t *testing.T) {
	assert.Zero(t, (&Packet{}).Size())
	assert.Equal(t, 4, (&Packet{Data: []byte{1, 2, 3, 4}}).Size())
}
