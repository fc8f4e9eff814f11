package mqtt

// bufferedMsg is a system event waiting for the broker connection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	// key, when set, makes a newer message with the same key replace this
	// one in place. Heartbeats use it so only the latest snapshot survives
	// an outage.
	key string
}

// ringBuffer is a fixed-capacity FIFO of system events kept while
// disconnected. Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // a message was dropped since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// at returns the index of the i-th oldest message.
func (r *ringBuffer) at(i int) int {
	return (r.head - r.count + i + r.capacity) % r.capacity
}

// push appends msg, or replaces a buffered message with the same key. When
// full the oldest message is dropped; push returns true for the first drop
// since the last drain.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	if msg.key != "" {
		for i := 0; i < r.count; i++ {
			if j := r.at(i); r.buf[j].key == msg.key {
				r.buf[j] = msg
				return false
			}
		}
	}

	dropped := false
	if r.count == r.capacity {
		dropped = !r.overflow
		r.overflow = true
		r.count-- // head already points at the oldest
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
	return dropped
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = r.buf[r.at(i)]
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
