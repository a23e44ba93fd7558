package gpio

import (
	"errors"
	"testing"
)

func TestFakeDriverConfigureAndGet(t *testing.T) {
	f := NewFakeDriver()

	if _, err := f.Get(3); err == nil {
		t.Error("expected error reading unconfigured line")
	}

	if err := f.Configure(3, Input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.SetLevel(3, true)

	v, err := f.Get(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Error("expected line 3 high")
	}
}

func TestFakeDriverSetRequiresOutput(t *testing.T) {
	f := NewFakeDriver()
	f.Configure(1, Input)

	if err := f.Set(1, true); err == nil {
		t.Error("expected error driving an input")
	}

	f.Configure(2, Output)
	if err := f.Set(2, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Level(2) {
		t.Error("expected line 2 high")
	}
	if got := f.WritesTo(2); len(got) != 1 || !got[0] {
		t.Errorf("writes: got %v, want [true]", got)
	}
}

func TestFakeDriverConfigureError(t *testing.T) {
	f := NewFakeDriver()
	f.ConfigureErr[7] = errors.New("pin claimed")

	if err := f.Configure(7, Input); err == nil {
		t.Error("expected configure error")
	}
	if _, ok := f.Dir(7); ok {
		t.Error("failed configure must not record a direction")
	}
}

func TestFakeDriverFire(t *testing.T) {
	f := NewFakeDriver()
	f.Configure(4, Input)
	f.Configure(5, Input)

	var got []uint64
	if err := f.RegisterInterrupt(Bit(4), func(pins uint64) { got = append(got, pins) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Fire(4, true)
	f.Fire(5, true) // not in mask

	if len(got) != 1 || got[0] != Bit(4) {
		t.Errorf("interrupts: got %v, want [%d]", got, Bit(4))
	}
	if !f.Level(5) {
		t.Error("Fire must still change the level of a masked-out line")
	}
}

func TestFakeDriverClose(t *testing.T) {
	f := NewFakeDriver()

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeDriverCountsConfigures(t *testing.T) {
	f := NewFakeDriver()
	f.ConfigureErr[4] = errors.New("claimed")

	f.Configure(4, Output)
	f.Configure(5, Output)
	f.Configure(5, Output)

	if n := f.Configures(4); n != 0 {
		t.Errorf("failed configure counted: got %d", n)
	}
	if n := f.Configures(5); n != 2 {
		t.Errorf("line 5: got %d configures, want 2", n)
	}
}
