package stack

// BufID identifies an engine buffer. Zero means no buffer.
type BufID uint8

const (
	// NoBuf is the absent buffer.
	NoBuf BufID = 0

	// AnyParam matches every parameter in CancelAlarm.
	AnyParam BufID = 0xff

	// DefaultBuffers is the pool size used when Config.Buffers is zero.
	DefaultBuffers = 8
)

type bufData struct {
	sig    Signal
	status error
}

func (e *Engine) validLocked(buf BufID) bool {
	return buf != NoBuf && int(buf) < len(e.inUse) && e.inUse[buf]
}

// alloc takes a free buffer from the pool.
func (e *Engine) alloc() (BufID, bool) {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	return e.allocLocked()
}

func (e *Engine) allocLocked() (BufID, bool) {
	for i := 1; i < len(e.inUse); i++ {
		if !e.inUse[i] {
			e.inUse[i] = true
			e.bufData[i] = bufData{}
			return BufID(i), true
		}
	}
	return NoBuf, false
}

// FreeBuffer returns buf to the pool. The oldest waiting out-buffer request,
// if any, is then served. Safe from any goroutine.
func (e *Engine) FreeBuffer(buf BufID) error {
	e.bufMu.Lock()
	if !e.validLocked(buf) {
		e.bufMu.Unlock()
		return ErrBadBuffer
	}
	e.inUse[buf] = false
	e.bufData[buf] = bufData{}

	var next *Callback
	var nbuf BufID
	if len(e.waiters) > 0 {
		if b, ok := e.allocLocked(); ok {
			next, nbuf = e.waiters[0], b
			e.waiters = e.waiters[1:]
		}
	}
	e.bufMu.Unlock()

	if next != nil {
		if err := e.enqueue(next, nbuf); err != nil {
			e.log.Error().Err(err).Str("callback", next.Name).Msg("dropping out-buffer request")
			_ = e.FreeBuffer(nbuf)
		}
	}
	e.kick()
	return nil
}

// GetOutBufferDeferred allocates a buffer and schedules cb with it. When the
// pool is empty the request waits for the next FreeBuffer. Safe from any
// goroutine; never blocks.
func (e *Engine) GetOutBufferDeferred(cb *Callback) error {
	e.bufMu.Lock()
	buf, ok := e.allocLocked()
	if !ok {
		if len(e.waiters) >= cap(e.queue) {
			e.bufMu.Unlock()
			return ErrQueueFull
		}
		e.waiters = append(e.waiters, cb)
		e.bufMu.Unlock()
		return nil
	}
	e.bufMu.Unlock()

	if err := e.enqueue(cb, buf); err != nil {
		_ = e.FreeBuffer(buf)
		return err
	}
	return nil
}

// BuffersInUse returns the number of allocated buffers.
func (e *Engine) BuffersInUse() int {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	n := 0
	for _, u := range e.inUse[1:] {
		if u {
			n++
		}
	}
	return n
}
