package logging

import "sync"

// AudioPingPong is the two-block hand-off between the audio acquisition
// worker and the audio logger: a mutex per block plus a block-ready
// semaphore per block, so the worker can fill one block while the
// logger drains the other without a shared lock serialising them.
//
// If the logger falls behind and holds both blocks, Fill blocks on the
// next block's mutex — backpressure that propagates to the FPGA FIFO
// drain loop upstream, exactly as intended: the FIFO absorbs the stall
// until its own capacity is exceeded, at which point the overflow
// indicator is raised rather than silently dropping samples.
type AudioPingPong struct {
	mu       [2]sync.Mutex
	buf      [2][]byte
	overflow [2]bool
	ready    [2]chan struct{}
}

// NewAudioPingPong allocates two blocks of blockSize bytes each.
func NewAudioPingPong(blockSize int) *AudioPingPong {
	p := &AudioPingPong{}
	p.buf[0] = make([]byte, blockSize)
	p.buf[1] = make([]byte, blockSize)
	p.ready[0] = make(chan struct{}, 1)
	p.ready[1] = make(chan struct{}, 1)
	return p
}

// Fill locks block idx (0 or 1), lets fill populate it in place, records
// whether an overflow was observed while this block was being gathered,
// unlocks, and posts the block's ready semaphore.
func (p *AudioPingPong) Fill(idx int, overflowed bool, fill func(buf []byte)) {
	p.mu[idx].Lock()
	fill(p.buf[idx])
	p.overflow[idx] = overflowed
	p.mu[idx].Unlock()

	select {
	case p.ready[idx] <- struct{}{}:
	default:
	}
}

// Wait blocks until either block has been posted ready, returning that
// block's index and true, or returns (0, false) once done is closed.
func (p *AudioPingPong) Wait(done <-chan struct{}) (idx int, ok bool) {
	select {
	case <-p.ready[0]:
		return 0, true
	case <-p.ready[1]:
		return 1, true
	case <-done:
		return 0, false
	}
}

// WithBlock locks block idx and runs fn against its current contents
// and overflow flag, releasing the lock afterward so the acquisition
// worker can resume filling it.
func (p *AudioPingPong) WithBlock(idx int, fn func(data []byte, overflowed bool)) {
	p.mu[idx].Lock()
	defer p.mu[idx].Unlock()
	fn(p.buf[idx], p.overflow[idx])
}
