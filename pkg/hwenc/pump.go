package hwenc

import (
	"io"

	"github.com/video-system/go-camera-encode/pkg/encode"
)

const (
	readChunk  = 64 * 1024
	queueDepth = 64
)

// packetPump reads the encoder's stdout in the background and queues
// each read as one owned packet, so DrainOne can poll without blocking
// against an encoder that is waiting for more input. The queue closes
// when the stream ends; a read failure is recorded and visible after
// close.
type packetPump struct {
	packets chan *encode.Packet
	readErr error // written once by run, read only after packets closes
}

func newPacketPump(r io.Reader) *packetPump {
	p := &packetPump{
		packets: make(chan *encode.Packet, queueDepth),
	}
	go p.run(r)
	return p
}

func (p *packetPump) run(r io.Reader) {
	defer close(p.packets)
	for {
		buf := make([]byte, readChunk)
		n, err := r.Read(buf)
		if n > 0 {
			p.packets <- &encode.Packet{Data: buf[:n]}
		}
		if err != nil {
			if err != io.EOF {
				p.readErr = err
			}
			return
		}
	}
}

// poll pulls the next ready packet without blocking.
// got is true when a packet was returned; closed is true once the
// stream has ended and the queue is fully drained.
func (p *packetPump) poll() (pkt *encode.Packet, got, closed bool) {
	select {
	case pkt, ok := <-p.packets:
		return pkt, ok, !ok
	default:
		return nil, false, false
	}
}

// wait blocks for the next packet; got is false once the stream has
// ended and the queue is fully drained.
func (p *packetPump) wait() (pkt *encode.Packet, got bool) {
	pkt, ok := <-p.packets
	return pkt, ok
}

// err returns the read failure, if any. Only meaningful after the
// queue has closed.
func (p *packetPump) err() error {
	return p.readErr
}
