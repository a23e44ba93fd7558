package adc

import "sync"

// Fake is a Converter test double that records the call sequence.
type Fake struct {
	mu  sync.Mutex
	buf []int16

	// Raw is written into the buffer by Trigger.
	Raw int16

	// InitErr and TriggerErr, if set, are returned by Init and Trigger.
	InitErr    error
	TriggerErr error

	// OnCall, if set, runs at the start of every method with the method name.
	OnCall func(op string)

	// Calls records method names in order.
	Calls []string

	// Channel, Resolution and Oversample record the last configuration.
	Channel    Channel
	Resolution Resolution
	Oversample Oversample
}

// NewFake creates a Fake returning raw on every conversion.
func NewFake(raw int16) *Fake {
	return &Fake{Raw: raw}
}

func (f *Fake) record(op string) {
	if f.OnCall != nil {
		f.OnCall(op)
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, op)
	f.mu.Unlock()
}

func (f *Fake) Init(priority uint8) error {
	f.record("init")
	return f.InitErr
}

func (f *Fake) ConfigureChannel(ch Channel) error {
	f.record("configure")
	f.mu.Lock()
	f.Channel = ch
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetMode(channels uint8, res Resolution, os Oversample) error {
	f.record("mode")
	f.mu.Lock()
	f.Resolution, f.Oversample = res, os
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetBuffer(buf []int16) error {
	f.record("buffer")
	f.mu.Lock()
	f.buf = buf
	f.mu.Unlock()
	return nil
}

func (f *Fake) Trigger() error {
	f.record("trigger")
	if f.TriggerErr != nil {
		return f.TriggerErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		return ErrNoBuffer
	}
	f.buf[0] = f.Raw
	return nil
}

func (f *Fake) Deinit() {
	f.record("deinit")
}

// CallCount returns the number of recorded calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Reset clears the recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.Calls = nil
	f.mu.Unlock()
}
