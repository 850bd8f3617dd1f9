package vm

import (
	"context"
	"sync/atomic"
	"time"
)

const TimerHz = 60

// Timers holds the delay and sound counters. They are the only state
// shared between the run loop and the tick goroutine.
type Timers struct {
	delay atomic.Uint32
	sound atomic.Uint32
}

// Tick decrements both counters by one, stopping at zero.
func (t *Timers) Tick() {
	decrement(&t.delay)
	decrement(&t.sound)
}

func decrement(v *atomic.Uint32) {
	for {
		cur := v.Load()
		if cur == 0 {
			return
		}
		if v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (t *Timers) Delay() uint8 {
	return uint8(t.delay.Load())
}

func (t *Timers) SetDelay(v uint8) {
	t.delay.Store(uint32(v))
}

func (t *Timers) Sound() uint8 {
	return uint8(t.sound.Load())
}

func (t *Timers) SetSound(v uint8) {
	t.sound.Store(uint32(v))
}

// Sounding reports whether the buzzer should be on.
func (t *Timers) Sounding() bool {
	return t.sound.Load() > 0
}

func (t *Timers) reset() {
	t.delay.Store(0)
	t.sound.Store(0)
}

// RunTicker calls Tick at hz until ctx is done.
func RunTicker(ctx context.Context, t *Timers, hz int) {
	if hz <= 0 {
		hz = TimerHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
