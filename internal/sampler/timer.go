package sampler

import (
	"sync"
	"time"
)

// Timer fires fn once after initial and then every period until Stop. fn runs
// on a timer goroutine and must only hand work off.
type Timer interface {
	Start(initial, period time.Duration, fn func())
	Stop()
}

type periodicTimer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen uint64
}

// NewTimer returns a Timer built on time.AfterFunc. Restarting replaces the
// previous schedule.
func NewTimer() Timer {
	return &periodicTimer{}
}

func (p *periodicTimer) Start(initial, period time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	gen := p.gen

	var tick func()
	tick = func() {
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		p.t = time.AfterFunc(period, tick)
		p.mu.Unlock()
		fn()
	}
	p.t = time.AfterFunc(initial, tick)
}

func (p *periodicTimer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *periodicTimer) stopLocked() {
	p.gen++
	if p.t != nil {
		p.t.Stop()
		p.t = nil
	}
}
