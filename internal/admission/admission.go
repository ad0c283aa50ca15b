// Package admission bounds how many encode jobs run at once.
//
// The ceiling is a buffered channel used as a counting semaphore: a send
// takes a slot, a receive returns it. TryAcquire never blocks. Callers that
// are refused decide for themselves whether to retry, queue or give up.
package admission

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
)

// Rejection reasons.
const (
	ReasonCapacity       = "capacity"
	ReasonMemoryPressure = "memory_pressure"
	ReasonClosed         = "closed"
)

// Rejection is wrapped by the resource_exhausted error TryAcquire returns.
type Rejection struct {
	Reason   string
	InUse    int
	Capacity int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("admission rejected: %s (%d/%d slots in use)", r.Reason, r.InUse, r.Capacity)
}

// ReasonOf returns the rejection reason carried by err, or "".
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}

// PressureSource reports whether the process is too loaded to start more
// work. *memory.Monitor implements it.
type PressureSource interface {
	UnderPressure() bool
}

// Controller hands out a fixed number of slots.
type Controller struct {
	slots    chan struct{}
	pressure PressureSource
	closed   atomic.Bool
}

// New creates a controller with capacity slots. pressure may be nil.
func New(capacity int, pressure PressureSource) *Controller {
	if capacity < 1 {
		capacity = 1
	}
	metrics.AdmissionCapacity.Set(float64(capacity))
	return &Controller{
		slots:    make(chan struct{}, capacity),
		pressure: pressure,
	}
}

// TryAcquire takes a slot if one is free. It never waits.
func (c *Controller) TryAcquire() (*Slot, error) {
	if c.closed.Load() {
		return nil, c.reject(ReasonClosed)
	}
	if c.pressure != nil && c.pressure.UnderPressure() {
		return nil, c.reject(ReasonMemoryPressure)
	}

	select {
	case c.slots <- struct{}{}:
		metrics.AdmissionSlotsInUse.Inc()
		return &Slot{c: c}, nil
	default:
		return nil, c.reject(ReasonCapacity)
	}
}

func (c *Controller) reject(reason string) error {
	metrics.AdmissionRejectionsTotal.WithLabelValues(reason).Inc()
	logging.Debug("Admission rejected: %s (%d/%d)", reason, c.InUse(), c.Capacity())
	return failure.Wrap(failure.CodeResourceExhausted, "admission", &Rejection{
		Reason:   reason,
		InUse:    c.InUse(),
		Capacity: c.Capacity(),
	})
}

// InUse returns the number of slots currently held.
func (c *Controller) InUse() int {
	return len(c.slots)
}

// Capacity returns the ceiling.
func (c *Controller) Capacity() int {
	return cap(c.slots)
}

// Close makes every later TryAcquire fail. Held slots stay valid until
// released.
func (c *Controller) Close() {
	c.closed.Store(true)
}

// Slot is permission to run one encode job.
type Slot struct {
	c    *Controller
	once sync.Once
}

// Release returns the slot. Calls after the first do nothing.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		<-s.c.slots
		metrics.AdmissionSlotsInUse.Dec()
	})
}
