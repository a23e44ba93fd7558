package mqtt

import "github.com/sweeney/contact-sensor/internal/logger"

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages sent while disconnected.
// The oldest message is dropped when full. A retained message replaces the
// buffered retained message on the same topic. Not safe for concurrent use.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	overflow bool // a message was dropped since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained {
		r.dropRetained(msg.topic)
	}
	n := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % n
	if r.count < n {
		r.count++
		return
	}
	if !r.overflow {
		logger.Warn().Int("capacity", n).Msg("mqtt offline buffer full, dropping oldest")
		r.overflow = true
	}
}

// dropRetained removes the buffered retained message on topic, if any, keeping
// the order of the rest.
func (r *ringBuffer) dropRetained(topic string) {
	n := len(r.buf)
	start := (r.head - r.count + n) % n
	for i := 0; i < r.count; i++ {
		m := r.buf[(start+i)%n]
		if !m.retained || m.topic != topic {
			continue
		}
		for j := i; j < r.count-1; j++ {
			r.buf[(start+j)%n] = r.buf[(start+j+1)%n]
		}
		r.count--
		r.head = (r.head - 1 + n) % n
		r.buf[r.head] = bufferedMsg{}
		return
	}
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	n := len(r.buf)
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + n) % n
	for i := range out {
		out[i] = r.buf[(start+i)%n]
	}
	r.count, r.head, r.overflow = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
