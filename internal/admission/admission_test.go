package admission

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-transcoder/internal/failure"
)

type pressureFlag struct{ on atomic.Bool }

func (p *pressureFlag) UnderPressure() bool { return p.on.Load() }

func TestTryAcquireUpToCapacity(t *testing.T) {
	c := New(2, nil)

	a, err := c.TryAcquire()
	if err != nil {
		t.Fatalf("first TryAcquire() error = %v", err)
	}
	b, err := c.TryAcquire()
	if err != nil {
		t.Fatalf("second TryAcquire() error = %v", err)
	}

	_, err = c.TryAcquire()
	if !errors.Is(err, failure.ErrResourceExhausted) {
		t.Fatalf("third TryAcquire() error = %v, want resource_exhausted", err)
	}
	if ReasonOf(err) != ReasonCapacity {
		t.Errorf("ReasonOf = %q, want capacity", ReasonOf(err))
	}
	if c.InUse() != 2 {
		t.Errorf("InUse() = %d after rejection, want 2", c.InUse())
	}

	a.Release()
	if c.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", c.InUse())
	}
	b.Release()
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", c.InUse())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := New(2, nil)
	a, _ := c.TryAcquire()
	b, _ := c.TryAcquire()

	a.Release()
	a.Release()
	a.Release()

	if c.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1 (double release must not free b's slot)", c.InUse())
	}
	b.Release()

	var nilSlot *Slot
	nilSlot.Release()
}

func TestNewClampsCapacity(t *testing.T) {
	if got := New(0, nil).Capacity(); got != 1 {
		t.Errorf("Capacity() = %d, want 1", got)
	}
}

func TestMemoryPressureRejects(t *testing.T) {
	p := &pressureFlag{}
	c := New(4, p)

	p.on.Store(true)
	_, err := c.TryAcquire()
	if ReasonOf(err) != ReasonMemoryPressure {
		t.Fatalf("ReasonOf = %q, want memory_pressure", ReasonOf(err))
	}
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", c.InUse())
	}

	p.on.Store(false)
	s, err := c.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire() after pressure cleared error = %v", err)
	}
	s.Release()
}

func TestCloseRejectsNewSlots(t *testing.T) {
	c := New(2, nil)
	held, _ := c.TryAcquire()
	c.Close()

	if _, err := c.TryAcquire(); ReasonOf(err) != ReasonClosed {
		t.Errorf("ReasonOf = %q, want closed", ReasonOf(err))
	}
	held.Release()
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", c.InUse())
	}
}

func TestCeilingHoldsUnderLoad(t *testing.T) {
	const capacity = 3
	c := New(capacity, nil)

	var running, peak, granted, rejected atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				slot, err := c.TryAcquire()
				if err != nil {
					rejected.Add(1)
					continue
				}
				granted.Add(1)
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				if in := c.InUse(); in > capacity {
					t.Errorf("InUse() = %d exceeds capacity", in)
				}
				time.Sleep(100 * time.Microsecond)
				running.Add(-1)
				slot.Release()
			}
		}()
	}
	wg.Wait()

	if peak.Load() > capacity {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), capacity)
	}
	if granted.Load() == 0 {
		t.Error("no slot was ever granted")
	}
	if granted.Load()+rejected.Load() != 64*20 {
		t.Errorf("granted+rejected = %d, want %d", granted.Load()+rejected.Load(), 64*20)
	}
	if c.InUse() != 0 {
		t.Errorf("InUse() = %d after load, want 0", c.InUse())
	}
}

func TestRejectionMessage(t *testing.T) {
	c := New(1, nil)
	s, _ := c.TryAcquire()
	defer s.Release()

	_, err := c.TryAcquire()
	want := "admission (resource_exhausted): admission rejected: capacity (1/1 slots in use)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
